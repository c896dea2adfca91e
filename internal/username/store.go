package username

import (
	"context"
	"sync"
)

// Store is the persisted set of reserved usernames. Implementations must be
// safe for concurrent use.
type Store interface {
	// Contains reports whether name is reserved.
	Contains(ctx context.Context, name string) (bool, error)
	// Add reserves name. It returns false without error when the name
	// was already present.
	Add(ctx context.Context, name string) (bool, error)
	// Remove releases name. Removing an absent name is not an error.
	Remove(ctx context.Context, name string) error
}

// MemoryStore keeps reserved usernames in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{names: make(map[string]struct{})}
}

// Contains implements Store.
func (s *MemoryStore) Contains(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok, nil
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; ok {
		return false, nil
	}
	s.names[name] = struct{}{}
	return true, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, name)
	return nil
}

// Len returns the number of reserved names.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}
