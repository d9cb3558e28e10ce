package store

import (
	"context"
	"sync"

	"github.com/layer-3/lens-onboard/ports"
)

// MemoryStore is an in-process KeyValueStore, used in tests and single-process deployments
type MemoryStore struct {
	data map[string]string
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]string),
	}
}

var _ ports.KeyValueStore = (*MemoryStore)(nil)

// GetItem returns the value stored at key
func (s *MemoryStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok, nil
}

// SetItem overwrites the value at key
func (s *MemoryStore) SetItem(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

// RemoveItem deletes key; removing a missing key is not an error
func (s *MemoryStore) RemoveItem(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}
