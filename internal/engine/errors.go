package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when an operation needs a session ID and
	// none was given.
	ErrNoSession = errors.New("session id is required")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

// ReplayError reports a committed history entry that could not be
// re-applied. It means the tool sources and the history have drifted apart;
// the invocation that triggered the replay is abandoned and the history is
// left untouched.
type ReplayError struct {
	Seq  int
	Tool string
	Err  error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay entry %d (%s): %v", e.Seq, e.Tool, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// InvocationError reports a live call that failed. Err is the error the
// tool returned, or the recovered panic value.
type InvocationError struct {
	Tool     string
	Err      error
	Panicked bool
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
