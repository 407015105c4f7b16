package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"alert-autoconf/internal/buildinfo"
	"alert-autoconf/internal/clock"
	"alert-autoconf/internal/config"
	"alert-autoconf/internal/defaults"
	"alert-autoconf/internal/document"
	"alert-autoconf/internal/domain"
	"alert-autoconf/internal/graphite"
	"alert-autoconf/internal/logging"
	"alert-autoconf/internal/metrics"
	"alert-autoconf/internal/moira"
	"alert-autoconf/internal/ownership"
	"alert-autoconf/internal/reconcile"
)

// Runner composes config, logger, ownership store, backend client, and engine
// for one command invocation.
type Runner struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func()
	clock    clock.Clock
	metrics  *metrics.Recorder

	store   ownership.Store
	backend reconcile.Backend
}

// Option customizes Runner collaborators.
type Option func(*Runner)

// WithLogger replaces the configured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStore replaces the store opened from storage.url.
func WithStore(store ownership.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithBackend replaces the Moira client built from backend settings.
func WithBackend(backend reconcile.Backend) Option {
	return func(r *Runner) {
		r.backend = backend
	}
}

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// NewRunner builds runner from validated config.
// Params: config and options.
// Returns: runner or logger setup error.
func NewRunner(cfg config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{cfg: cfg, closeLog: func() {}}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		logger, closeLog, err := logging.New(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		r.logger, r.closeLog = logger, closeLog
	}
	if r.clock == nil {
		r.clock = clock.RealClock{}
	}
	r.metrics = metrics.NewRecorder(r.clock)
	return r, nil
}

// Logger returns runner logger.
func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

// Metrics returns run metrics recorder.
func (r *Runner) Metrics() *metrics.Recorder {
	return r.metrics
}

// Close releases store and log sinks.
func (r *Runner) Close() error {
	var err error
	if r.store != nil {
		err = r.store.Close()
	}
	r.closeLog()
	return err
}

func (r *Runner) ownershipStore(ctx context.Context) (ownership.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	store, err := ownership.Open(ctx, r.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open ownership store: %w", err)
	}
	r.store = store
	return store, nil
}

func (r *Runner) moiraBackend() reconcile.Backend {
	if r.backend == nil {
		r.backend = moira.New(r.cfg.Backend, buildinfo.UserAgent(os.Getenv), r.logger.With("component", "moira"))
	}
	return r.backend
}

func (r *Runner) loadDocument() (domain.Document, error) {
	doc, err := document.Load(r.cfg.Service.Document, document.Options{Cluster: r.cfg.Service.Cluster})
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document %q: %w", r.cfg.Service.Document, err)
	}
	return doc, nil
}

// Apply loads the document, merges stored defaults, and reconciles the backend.
// Params: context.
// Returns: run report and first fatal error.
func (r *Runner) Apply(ctx context.Context) (reconcile.Report, error) {
	started := r.clock.Now()
	report, err := r.apply(ctx)
	r.metrics.Record(report, err == nil)
	if path := r.cfg.Metrics.Textfile; path != "" {
		if writeErr := r.metrics.WriteTextfile(path); writeErr != nil {
			r.logger.Warn("metrics textfile write failed", "path", path, "error", writeErr.Error())
		}
	}

	attrs := []any{"token", r.cfg.Service.Token, "duration", clock.Since(r.clock, started).String()}
	report.Each(func(kind, action string, n int) {
		if n > 0 {
			attrs = append(attrs, kind+"_"+action, n)
		}
	})
	if err != nil {
		r.logger.Error("apply failed", append(attrs, "error", err.Error())...)
		return report, err
	}
	r.logger.Info("apply finished", attrs...)
	return report, nil
}

func (r *Runner) apply(ctx context.Context) (reconcile.Report, error) {
	doc, err := r.loadDocument()
	if err != nil {
		return reconcile.Report{}, err
	}
	store, err := r.ownershipStore(ctx)
	if err != nil {
		return reconcile.Report{}, err
	}
	keys := ownership.NewKeys(r.cfg.Service.KeyPrefix)
	if err := defaults.Merge(ctx, store, keys, &doc, r.logger); err != nil {
		return reconcile.Report{}, err
	}

	engine := reconcile.New(r.moiraBackend(), store, reconcile.Options{
		Token:     r.cfg.Service.Token,
		KeyPrefix: r.cfg.Service.KeyPrefix,
	}, r.logger)
	return engine.Apply(ctx, doc)
}

// Validate renders every trigger target through Graphite.
// Params: context.
// Returns: per-target results and error when loading or any target failed.
func (r *Runner) Validate(ctx context.Context) ([]graphite.TargetResult, error) {
	doc, err := r.loadDocument()
	if err != nil {
		return nil, err
	}
	validator := graphite.NewValidator(r.cfg.Graphite, r.logger.With("component", "graphite"))
	return validator.ValidateDocument(ctx, doc)
}

// SetDefaults validates a defaults file and stores it for later applies.
// Params: context and defaults file path.
// Returns: number of stored rules or read/validation/store error.
func (r *Runner) SetDefaults(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read defaults file %q: %w", path, err)
	}
	store, err := r.ownershipStore(ctx)
	if err != nil {
		return 0, err
	}
	n, err := defaults.Save(ctx, store, ownership.NewKeys(r.cfg.Service.KeyPrefix), data)
	if err != nil {
		return 0, err
	}
	r.logger.Info("defaults stored", "path", path, "rules", n)
	return n, nil
}
