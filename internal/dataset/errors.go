package dataset

import "errors"

var (
	// ErrEnvironmentNotFound is returned when an environment has no directory
	// under the environments root.
	ErrEnvironmentNotFound = errors.New("environment not found")

	// ErrInvalidTable is returned when a baseline table file cannot be decoded
	// into a table object.
	ErrInvalidTable = errors.New("invalid baseline table")
)
