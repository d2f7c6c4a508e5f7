package memory

import (
	"context"
	"sync"

	"github.com/aretw0/enginegate/pkg/domain"
)

// Store implements ports.DemoStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save keeps a copy of the recording.
func (s *Store) Save(ctx context.Context, demoID string, demo []byte) error {
	copied := append([]byte(nil), demo...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[demoID] = copied
	return nil
}

// Load returns a copy so callers can't mutate the stored recording.
func (s *Store) Load(ctx context.Context, demoID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	demo, ok := s.data[demoID]
	if !ok {
		return nil, domain.ErrDemoNotFound
	}
	return append([]byte(nil), demo...), nil
}

// Delete removes the recording.
func (s *Store) Delete(ctx context.Context, demoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, demoID)
	return nil
}

// List returns stored demo IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	demos := make([]string, 0, len(s.data))
	for id := range s.data {
		demos = append(demos, id)
	}
	return demos, nil
}
