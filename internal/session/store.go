package session

import (
	"context"
	"time"
)

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns a copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Put creates or replaces a session, history included.
	Put(ctx context.Context, s *Session) error

	// Append adds an action at position seq, which must equal the current
	// history length; otherwise ErrConflict is returned and nothing changes.
	Append(ctx context.Context, id string, seq int, a Action) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// List returns every session summary, most recently updated first.
	List(ctx context.Context) ([]Summary, error)

	// Prune removes sessions last updated before cutoff and returns how
	// many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}
