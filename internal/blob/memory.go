package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and throwaway environments.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// PutCount tracks the number of successful writes, read by idempotence
	// tests asserting that cache hits perform zero writes.
	putCount int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[path] = stored
	s.putCount++
	return path, nil
}

// PutCount returns the number of writes performed so far.
func (s *MemoryStore) PutCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.putCount
}
