// Package runstore is the key/value store that run records live in.
package runstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for missing or expired keys.
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable wraps failures to reach the backing store.
	ErrUnavailable = errors.New("run store unavailable")
)

// Store is a key/value store with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RunKey is the store key of a run record.
func RunKey(runID string) string {
	return "plan:run:" + runID
}

// DiagnosticsKey is the store key of a run's diagnostics snapshot.
func DiagnosticsKey(runID string) string {
	return "plan:diag:" + runID
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key] = memEntry{value: append([]byte(nil), value...), expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Cleanup drops expired entries and reports how many were removed.
func (s *MemoryStore) Cleanup(ctx context.Context) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}
