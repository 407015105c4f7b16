package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alert-autoconf/internal/config"
)

var (
	// ErrNotFound indicates absent blob key.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates revision mismatch for CAS update.
	ErrConflict = errors.New("revision conflict")
)

// Store persists ownership sets and small blobs.
// Params: set operations keyed by token keys plus blob get/put for shared defaults.
// Returns: backend persistence behavior.
type Store interface {
	// Exists reports whether set key has at least one member.
	Exists(ctx context.Context, key string) (bool, error)
	Members(ctx context.Context, key string) ([]string, error)
	Add(ctx context.Context, key, member string) error
	Remove(ctx context.Context, key, member string) error
	// KeysWithPrefix lists non-empty set keys starting with prefix.
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open builds store implementation selected by URL scheme.
// Params: context for connection checks and storage settings.
// Returns: connected store or setup error.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	scheme, err := config.StorageScheme(cfg.URL)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "redis", "rediss":
		return NewRedisStore(ctx, cfg.URL)
	case "nats", "tls":
		return NewNATSStore(NATSSettings{
			URL:               splitURLs(cfg.URL),
			Bucket:            cfg.NATSBucket,
			AllowCreateBucket: cfg.AllowCreateBucket,
		})
	case "sqlite":
		return NewSQLiteStore(ctx, strings.TrimPrefix(strings.TrimSpace(cfg.URL), "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", scheme)
	}
}

// splitURLs splits comma-separated server list.
// Params: raw URL value.
// Returns: trimmed non-empty URLs.
func splitURLs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
