package fetcher

import (
	"context"
	"sync"
)

// Store keeps the payloads of successful executions so later fetches of the same key reuse them.
type Store interface {
	// Load returns the payload stored under key and whether one was found.
	Load(ctx context.Context, key string) (any, bool, error)
	// Save stores value under key, replacing any previous payload.
	Save(ctx context.Context, key string, value any) error
	// Delete drops the payload stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]any)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]

	return v, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, value any) error {
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()

	return nil
}
