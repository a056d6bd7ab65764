// Package session defines the per-caller state of the execution engine: the
// selected environment and interface, the inputs needed to rebuild the
// synthesized unit, and the append-only action history.
package session

import (
	"errors"
	"slices"
	"time"

	"github.com/flemzord/toolbench/internal/catalog"
	"github.com/flemzord/toolbench/internal/jsonx"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrConflict is returned by Append when the expected sequence number
	// does not match the stored history length.
	ErrConflict = errors.New("session history changed concurrently")
)

// Action is one committed tool call.
type Action struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	At        time.Time      `json:"at"`
}

// Session is the state of one environment/interface selection.
type Session struct {
	ID          string `json:"id"`
	Environment string `json:"environment"`
	Interface   string `json:"interface"`

	// Static marks sessions whose tools come from a compiled-in tool set;
	// Tools is empty for them.
	Static bool `json:"static,omitempty"`

	// Tools holds the descriptors the unit is synthesized from.
	Tools       []catalog.Descriptor `json:"tools,omitempty"`
	Diagnostics []catalog.Diagnostic `json:"diagnostics,omitempty"`

	History   []Action  `json:"history"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the listing form of a session.
type Summary struct {
	ID          string    `json:"id"`
	Environment string    `json:"environment"`
	Interface   string    `json:"interface"`
	HistoryLen  int       `json:"history_len"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary returns the listing form of s.
func (s *Session) Summary() Summary {
	return Summary{
		ID:          s.ID,
		Environment: s.Environment,
		Interface:   s.Interface,
		HistoryLen:  len(s.History),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Clone returns a copy of s that shares nothing mutable with it.
// Descriptors are immutable and are shared.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Tools = slices.Clone(s.Tools)
	cp.Diagnostics = slices.Clone(s.Diagnostics)
	cp.History = make([]Action, len(s.History))
	for i, a := range s.History {
		cp.History[i] = a.Clone()
	}
	return &cp
}

// Clone deep-copies the action arguments.
func (a Action) Clone() Action {
	a.Arguments = jsonx.CloneObject(a.Arguments)
	return a
}
