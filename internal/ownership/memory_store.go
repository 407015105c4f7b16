package ownership

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps ownership sets in process memory.
// Params: in-memory maps for sets and blobs.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu    sync.RWMutex
	sets  map[string]map[string]struct{}
	blobs map[string][]byte
}

// NewMemoryStore creates in-memory ownership store.
// Params: none.
// Returns: initialized in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sets:  make(map[string]map[string]struct{}),
		blobs: make(map[string][]byte),
	}
}

// Exists reports whether set key has members.
// Params: set key.
// Returns: true when set is non-empty.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets[key]) > 0, nil
}

// Members lists set members in sorted order.
// Params: set key.
// Returns: members (empty for missing key).
func (s *MemoryStore) Members(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets[key]))
	for member := range s.sets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

// Add inserts member into set.
// Params: set key and member.
// Returns: nil (in-memory update).
func (s *MemoryStore) Add(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

// Remove deletes member and drops empty sets.
// Params: set key and member.
// Returns: nil (in-memory update).
func (s *MemoryStore) Remove(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	delete(set, member)
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return nil
}

// KeysWithPrefix lists non-empty set keys by prefix.
// Params: key prefix.
// Returns: sorted matching keys.
func (s *MemoryStore) KeysWithPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0)
	for key, set := range s.sets {
		if len(set) > 0 && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns blob value.
// Params: blob key.
// Returns: copy of value or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put writes blob value unconditionally.
// Params: blob key and value.
// Returns: nil.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), value...)
	return nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
