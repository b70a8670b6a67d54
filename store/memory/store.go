// Package memory provides an in-memory Store implementation for tests and
// ephemeral hosts. Entries do not survive the process.
package memory

import (
	"context"
	"sync"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/buffer"
	relaystore "github.com/vyasoai/relay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*buffer.Entry // keyed by event ID
	closed  bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entries: make(map[string]*buffer.Entry),
	}
}

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed once the store is closed.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return relay.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Put inserts or replaces the entry.
func (s *Store) Put(_ context.Context, e *buffer.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return relay.ErrStoreClosed
	}
	s.entries[e.ID] = e.Clone()
	return nil
}

// GetAll returns copies of every entry.
func (s *Store) GetAll(_ context.Context) ([]*buffer.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, relay.ErrStoreClosed
	}
	out := make([]*buffer.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

// Update replaces the retry fields of an existing entry.
func (s *Store) Update(_ context.Context, e *buffer.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return relay.ErrStoreClosed
	}
	existing, ok := s.entries[e.ID]
	if !ok {
		return nil
	}
	existing.Attempts = e.Attempts
	existing.LastAttempt = e.LastAttempt
	existing.NextDue = e.NextDue
	return nil
}

// Delete removes the entry with id.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return relay.ErrStoreClosed
	}
	delete(s.entries, id)
	return nil
}

// Len returns the number of buffered entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
