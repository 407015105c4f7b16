package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultKeyPrefix         = "autoconf"
	defaultDocumentPath      = "etc/alert.yaml"
	defaultBackendURL        = "http://localhost"
	defaultBackendTimeoutSec = 30
	defaultRetryMaxAttempts  = 3
	defaultRetryInitialMS    = 1000
	defaultRetryMultiplier   = 1.5
	defaultNATSBucket        = "autoconf"
	defaultGraphiteURL       = "http://localhost/render"
	defaultGraphiteTimeout   = 10

	// ClusterTokenPrefix prefixes token derived from cluster name.
	ClusterTokenPrefix = "kubernetes:"

	// PasswordEnv overrides backend password when flag/file leave it empty.
	PasswordEnv = "ALERT_AUTOCONF_PASSWORD"
)

// Config holds tool settings for one reconciliation run.
// Params: TOML sections from optional settings file plus CLI overrides.
// Returns: validated runtime configuration.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Backend  BackendConfig  `toml:"backend"`
	Storage  StorageConfig  `toml:"storage"`
	Graphite GraphiteConfig `toml:"graphite"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      LogConfig      `toml:"log"`
}

// ServiceConfig identifies the run and its desired-state document.
// Params: ownership token, cluster name, store key namespace, document path.
// Returns: run identity settings.
type ServiceConfig struct {
	Token     string `toml:"token"`
	Cluster   string `toml:"cluster"`
	KeyPrefix string `toml:"key_prefix"`
	Document  string `toml:"document"`
}

// BackendConfig describes the alerting backend API endpoint.
// Params: base URL, credentials, timeout, extra headers, retry policy.
// Returns: backend client options.
type BackendConfig struct {
	URL        string            `toml:"url"`
	User       string            `toml:"user"`
	Password   string            `toml:"password"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
	Retry      RetryConfig       `toml:"retry"`
}

// RetryConfig controls backend call retries. Creates are retried only when
// the connection could not be made.
// Params: attempts budget, first delay, delay multiplier.
// Returns: exponential backoff policy.
type RetryConfig struct {
	MaxAttempts int     `toml:"max_attempts"`
	InitialMS   int     `toml:"initial_ms"`
	Multiplier  float64 `toml:"multiplier"`
}

// StorageConfig selects the ownership store backend.
// Params: store URL (redis://, nats://, sqlite://, memory://) and NATS bucket options.
// Returns: ownership store options.
type StorageConfig struct {
	URL               string `toml:"url"`
	NATSBucket        string `toml:"nats_bucket"`
	AllowCreateBucket bool   `toml:"allow_create_bucket"`
}

// GraphiteConfig configures target validation.
// Params: render endpoint and request timeout.
// Returns: validator options.
type GraphiteConfig struct {
	RenderURL  string `toml:"render_url"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// MetricsConfig configures run metrics export.
// Params: optional node-exporter textfile path.
// Returns: metrics sink options.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// Overrides carries command-line values that win over the settings file.
// Params: non-empty fields replace file values.
// Returns: override set for Load.
type Overrides struct {
	Document   string
	URL        string
	User       string
	Password   string
	Token      string
	Cluster    string
	StorageURL string
	LogLevel   string
}

// Load reads optional settings file, applies overrides, defaults, and validation.
// Params: settings path (may be empty) and CLI overrides.
// Returns: validated config or load/validation error.
func Load(path string, overrides Overrides) (Config, error) {
	return load(path, overrides, validateConfig)
}

// LoadForValidation is Load without ownership requirements (token, storage);
// target validation talks to Graphite only.
// Params: settings path (may be empty) and CLI overrides.
// Returns: config with defaults or load/validation error.
func LoadForValidation(path string, overrides Overrides) (Config, error) {
	return load(path, overrides, validateLogSinks)
}

func load(path string, overrides Overrides, validate func(Config) error) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	applyOverrides(&cfg, overrides)
	if cfg.Backend.Password == "" {
		cfg.Backend.Password = os.Getenv(PasswordEnv)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML settings file.
// Params: file path.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read settings file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode settings file %q: %w", path, err)
	}
	return cfg, nil
}

// applyOverrides copies non-empty CLI values over file values.
// Params: destination config and overrides.
// Returns: updated config side-effect.
func applyOverrides(cfg *Config, ov Overrides) {
	set := func(dst *string, value string) {
		if strings.TrimSpace(value) != "" {
			*dst = strings.TrimSpace(value)
		}
	}
	set(&cfg.Service.Document, ov.Document)
	set(&cfg.Backend.URL, ov.URL)
	set(&cfg.Backend.User, ov.User)
	set(&cfg.Backend.Password, ov.Password)
	set(&cfg.Service.Token, ov.Token)
	set(&cfg.Service.Cluster, ov.Cluster)
	set(&cfg.Storage.URL, ov.StorageURL)
	if strings.TrimSpace(ov.LogLevel) != "" {
		level := strings.ToLower(strings.TrimSpace(ov.LogLevel))
		cfg.Log.Console.Level = level
		cfg.Log.File.Level = level
	}
}

// applyDefaults fills unset values.
// Params: config to mutate.
// Returns: defaulted config side-effect.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.KeyPrefix) == "" {
		cfg.Service.KeyPrefix = defaultKeyPrefix
	}
	if strings.TrimSpace(cfg.Service.Document) == "" {
		cfg.Service.Document = defaultDocumentPath
	}
	if strings.TrimSpace(cfg.Service.Token) == "" && strings.TrimSpace(cfg.Service.Cluster) != "" {
		cfg.Service.Token = ClusterTokenPrefix + strings.TrimSpace(cfg.Service.Cluster)
	}

	if strings.TrimSpace(cfg.Backend.URL) == "" {
		cfg.Backend.URL = defaultBackendURL
	}
	cfg.Backend.URL = NormalizeBackendURL(cfg.Backend.URL)
	if cfg.Backend.TimeoutSec <= 0 {
		cfg.Backend.TimeoutSec = defaultBackendTimeoutSec
	}
	if cfg.Backend.Retry.MaxAttempts <= 0 {
		cfg.Backend.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if cfg.Backend.Retry.InitialMS <= 0 {
		cfg.Backend.Retry.InitialMS = defaultRetryInitialMS
	}
	if cfg.Backend.Retry.Multiplier < 1 {
		cfg.Backend.Retry.Multiplier = defaultRetryMultiplier
	}

	if strings.TrimSpace(cfg.Storage.NATSBucket) == "" {
		cfg.Storage.NATSBucket = defaultNATSBucket
	}

	if strings.TrimSpace(cfg.Graphite.RenderURL) == "" {
		cfg.Graphite.RenderURL = defaultGraphiteURL
	}
	if cfg.Graphite.TimeoutSec <= 0 {
		cfg.Graphite.TimeoutSec = defaultGraphiteTimeout
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
}

// NormalizeBackendURL adds http:// when scheme is missing and trims trailing slash.
// Params: raw backend URL.
// Returns: absolute base URL.
func NormalizeBackendURL(raw string) string {
	value := strings.TrimSpace(raw)
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		value = "http://" + value
	}
	return strings.TrimRight(value, "/")
}

// validateConfig checks settings consistency.
// Params: defaulted config.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Service.Token) == "" {
		return errors.New("service.token or service.cluster is required")
	}
	if strings.ContainsAny(cfg.Service.KeyPrefix, ":*?[] ") {
		return fmt.Errorf("service.key_prefix has unsupported value %q", cfg.Service.KeyPrefix)
	}
	if _, err := url.Parse(cfg.Backend.URL); err != nil {
		return fmt.Errorf("backend.url is invalid: %w", err)
	}
	if strings.TrimSpace(cfg.Storage.URL) == "" {
		return errors.New("storage.url is required")
	}
	if _, err := StorageScheme(cfg.Storage.URL); err != nil {
		return err
	}
	return validateLogSinks(cfg)
}

func validateLogSinks(cfg Config) error {
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	return validateLogSink("log.file", cfg.Log.File, true)
}

// StorageScheme extracts and checks the ownership store URL scheme.
// Params: storage URL.
// Returns: lower-case scheme or unsupported-scheme error.
func StorageScheme(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	scheme, _, found := strings.Cut(value, "://")
	if !found {
		if value == "memory" {
			return "memory", nil
		}
		return "", fmt.Errorf("storage.url %q has no scheme", raw)
	}
	scheme = strings.ToLower(scheme)
	switch scheme {
	case "redis", "rediss", "nats", "tls", "sqlite", "memory":
		return scheme, nil
	default:
		return "", fmt.Errorf("storage.url has unsupported scheme %q", scheme)
	}
}

// validateLogSink checks one sink.
// Params: config path prefix, sink, and whether path is mandatory.
// Returns: validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
