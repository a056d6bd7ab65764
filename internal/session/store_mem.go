package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore is a thread-safe, in-memory implementation of Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore creates a new empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// Get returns a copy of the session.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess.Clone(), nil
}

// Put creates or replaces a session.
func (s *MemoryStore) Put(_ context.Context, sess *Session) error {
	cp := sess.Clone()
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cp.ID] = cp
	return nil
}

// Append adds an action at position seq.
func (s *MemoryStore) Append(_ context.Context, id string, seq int, a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if seq != len(sess.History) {
		return fmt.Errorf("%w: %s at %d, have %d", ErrConflict, id, seq, len(sess.History))
	}
	sess.History = append(sess.History, a.Clone())
	sess.UpdatedAt = s.now()
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List returns all session summaries, most recently updated first.
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Summary())
	}
	SortSummaries(out)
	return out, nil
}

// Prune removes sessions last updated before cutoff.
func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// SortSummaries orders summaries most recently updated first, then by ID.
func SortSummaries(out []Summary) {
	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
