package ownership

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
)

const (
	natsSetKeyPrefix  = "s."
	natsBlobKeyPrefix = "b."
	natsCASAttempts   = 8
)

// NATSSettings holds JetStream KV connection settings.
type NATSSettings struct {
	URL               []string
	Bucket            string
	AllowCreateBucket bool
}

// NATSStore persists ownership sets in a JetStream KV bucket.
// Params: NATS connection and KV bucket handle.
// Returns: KV-backed ownership store implementation.
type NATSStore struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// NewNATSStore opens (or creates) KV bucket and returns NATS backend.
// Params: NATS/JetStream settings.
// Returns: initialized NATS store or setup error.
func NewNATSStore(settings NATSSettings) (*NATSStore, error) {
	bucket := strings.TrimSpace(settings.Bucket)
	if bucket == "" {
		bucket = "autoconf"
	}
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if err != nil {
		if !settings.AllowCreateBucket {
			nc.Close()
			return nil, fmt.Errorf("open bucket %q: %w", bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
	}
	return &NATSStore{nc: nc, kv: kv}, nil
}

// encodeNATSKey maps arbitrary store key into KV-safe key.
// Params: key kind prefix and logical key.
// Returns: KV key.
func encodeNATSKey(kind, key string) string {
	return kind + base64.RawURLEncoding.EncodeToString([]byte(key))
}

// decodeNATSKey reverses encodeNATSKey for set keys.
// Params: raw KV key.
// Returns: logical key and true for set keys.
func decodeNATSKey(raw string) (string, bool) {
	if !strings.HasPrefix(raw, natsSetKeyPrefix) {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(raw, natsSetKeyPrefix))
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// readSet loads set members with KV revision.
// Params: logical set key.
// Returns: members, revision (0 when absent), or read error.
func (s *NATSStore) readSet(key string) ([]string, uint64, error) {
	entry, err := s.kv.Get(encodeNATSKey(natsSetKeyPrefix, key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("get set %q: %w", key, err)
	}
	var members []string
	if len(entry.Value()) > 0 {
		if err := json.Unmarshal(entry.Value(), &members); err != nil {
			return nil, 0, fmt.Errorf("decode set %q: %w", key, err)
		}
	}
	return members, entry.Revision(), nil
}

// writeSet stores members guarded by expected revision.
// Params: logical set key, expected revision, and members.
// Returns: ErrConflict on revision mismatch.
func (s *NATSStore) writeSet(key string, revision uint64, members []string) error {
	kvKey := encodeNATSKey(natsSetKeyPrefix, key)
	var err error
	if len(members) == 0 {
		if revision == 0 {
			return nil
		}
		err = s.kv.Delete(kvKey, nats.LastRevision(revision))
	} else {
		sort.Strings(members)
		body, encodeErr := json.Marshal(members)
		if encodeErr != nil {
			return fmt.Errorf("encode set %q: %w", key, encodeErr)
		}
		if revision == 0 {
			_, err = s.kv.Create(kvKey, body)
		} else {
			_, err = s.kv.Update(kvKey, body, revision)
		}
	}
	if err != nil {
		if errors.Is(err, nats.ErrKeyExists) || strings.Contains(strings.ToLower(err.Error()), "wrong last sequence") {
			return ErrConflict
		}
		return fmt.Errorf("write set %q: %w", key, err)
	}
	return nil
}

// mutateSet applies change under CAS with bounded retries.
// Params: context, logical set key, and mutation returning new members.
// Returns: write error or ErrConflict after exhausted retries.
func (s *NATSStore) mutateSet(ctx context.Context, key string, change func([]string) ([]string, bool)) error {
	for attempt := 0; attempt < natsCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		members, revision, err := s.readSet(key)
		if err != nil {
			return err
		}
		next, changed := change(members)
		if !changed {
			return nil
		}
		err = s.writeSet(key, revision, next)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("update set %q: %w", key, ErrConflict)
}

// Exists reports whether set key has members.
func (s *NATSStore) Exists(_ context.Context, key string) (bool, error) {
	members, _, err := s.readSet(key)
	if err != nil {
		return false, err
	}
	return len(members) > 0, nil
}

// Members lists set members.
func (s *NATSStore) Members(_ context.Context, key string) ([]string, error) {
	members, _, err := s.readSet(key)
	return members, err
}

// Add inserts member into set.
func (s *NATSStore) Add(ctx context.Context, key, member string) error {
	return s.mutateSet(ctx, key, func(members []string) ([]string, bool) {
		for _, existing := range members {
			if existing == member {
				return members, false
			}
		}
		return append(members, member), true
	})
}

// Remove deletes member; empty sets are removed from bucket.
func (s *NATSStore) Remove(ctx context.Context, key, member string) error {
	return s.mutateSet(ctx, key, func(members []string) ([]string, bool) {
		next := make([]string, 0, len(members))
		for _, existing := range members {
			if existing != member {
				next = append(next, existing)
			}
		}
		return next, len(next) != len(members)
	})
}

// KeysWithPrefix lists set keys by logical prefix.
// Params: logical key prefix.
// Returns: sorted matching keys from bucket.
func (s *NATSStore) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	rawKeys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys := make([]string, 0)
	for _, raw := range rawKeys {
		key, ok := decodeNATSKey(raw)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get reads blob value.
func (s *NATSStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(encodeNATSKey(natsBlobKeyPrefix, key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob %q: %w", key, err)
	}
	return entry.Value(), nil
}

// Put writes blob value unconditionally.
func (s *NATSStore) Put(_ context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(encodeNATSKey(natsBlobKeyPrefix, key), value); err != nil {
		return fmt.Errorf("put blob %q: %w", key, err)
	}
	return nil
}

// Close closes underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
