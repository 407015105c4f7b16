package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"alert-autoconf/internal/domain"
	"alert-autoconf/internal/logging"
	"alert-autoconf/internal/ownership"
)

// TriggerBackend is the trigger part of the alerting backend.
type TriggerBackend interface {
	// FetchTrigger returns false when the backend has no such trigger.
	FetchTrigger(ctx context.Context, id string) (domain.Trigger, bool, error)
	FetchAllTriggers(ctx context.Context) ([]domain.Trigger, error)
	FetchTriggerIDsByTags(ctx context.Context, tags []string) ([]string, error)
	CreateTrigger(ctx context.Context, trigger domain.Trigger) (domain.Trigger, error)
	UpdateTrigger(ctx context.Context, id string, trigger domain.Trigger) (domain.Trigger, error)
	// DeleteTrigger returns false when the trigger was already gone.
	DeleteTrigger(ctx context.Context, id string) (bool, error)
}

// SubscriptionBackend is the subscription and contact part of the alerting backend.
type SubscriptionBackend interface {
	FetchAllSubscriptions(ctx context.Context) ([]domain.SubscriptionRecord, error)
	CreateSubscription(ctx context.Context, rec domain.SubscriptionRecord) (string, error)
	DeleteSubscription(ctx context.Context, id string) (bool, error)
	FetchUserContacts(ctx context.Context) ([]domain.Contact, error)
	CreateContact(ctx context.Context, contact domain.Contact) (domain.Contact, error)
}

// Backend is the full capability set used by Engine.
type Backend interface {
	TriggerBackend
	SubscriptionBackend
}

// Options holds per-run reconciliation settings.
// Params: ownership token, store key namespace, and tag lists.
// Returns: engine options; nil tag lists fall back to built-in lists.
type Options struct {
	Token                    string
	KeyPrefix                string
	ControlTags              []string
	SubscriptionExcludedTags []string
}

// Engine converges backend triggers and subscriptions owned by one token.
// Params: backend client, ownership store, options, logger.
// Returns: reconciliation engine; one run at a time per token.
type Engine struct {
	backend Backend
	store   ownership.Store
	keys    ownership.Keys
	opts    Options
	logger  *slog.Logger
}

// New creates reconciliation engine.
// Params: backend, ownership store, options, and logger.
// Returns: engine instance.
func New(backend Backend, store ownership.Store, opts Options, logger *slog.Logger) *Engine {
	if opts.ControlTags == nil {
		opts.ControlTags = domain.ControlTags()
	}
	if opts.SubscriptionExcludedTags == nil {
		opts.SubscriptionExcludedTags = domain.SubscriptionDiscoveryExcludedTags()
	}
	return &Engine{
		backend: backend,
		store:   store,
		keys:    ownership.NewKeys(opts.KeyPrefix),
		opts:    opts,
		logger:  logging.OrDiscard(logger).With("token", opts.Token),
	}
}

// Apply reconciles triggers (both phases) and then subscriptions.
// Params: context and normalized desired document.
// Returns: action report and first fatal error; committed actions are not rolled back.
func (e *Engine) Apply(ctx context.Context, doc domain.Document) (Report, error) {
	var report Report
	if e.opts.Token == "" {
		return report, fmt.Errorf("reconcile: empty ownership token")
	}

	counts, err := e.ReconcileTriggers(ctx, doc.Triggers, doc.Prefixed())
	report.Triggers = counts
	if err != nil {
		return report, fmt.Errorf("reconcile triggers: %w", err)
	}

	counts, err = e.ReconcileSubscriptions(ctx, doc.Alerting)
	report.Subscriptions = counts
	if err != nil {
		return report, fmt.Errorf("reconcile subscriptions: %w", err)
	}
	return report, nil
}
