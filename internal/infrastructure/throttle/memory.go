package throttle

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Windows do not survive a restart, so
// production kiosks use the sqlite store instead.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]Window
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]Window)}
}

var _ Store = (*MemoryStore)(nil)

// Get returns the window for key, or nil when none exists.
func (s *MemoryStore) Get(_ context.Context, key string) (*Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// Put upserts the window for key.
func (s *MemoryStore) Put(_ context.Context, key string, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[key] = w
	return nil
}

// Delete removes the window for key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}
