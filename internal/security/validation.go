package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
)

// Validation limits.
const (
	DefaultMaxBodySize  = 1 << 20 // 1 MiB
	DefaultMaxJSONDepth = 32      // reasonable nesting limit
)

// Validation errors.
var (
	ErrBodyTooLarge = errors.New("request body exceeds maximum size")
	ErrJSONTooDeep  = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON  = errors.New("invalid JSON")

	// ErrInvalidIdentifier is returned for environment or interface names
	// outside the safe character set.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// MaxIdentifierLength bounds environment and interface names.
const MaxIdentifierLength = 128

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateIdentifier checks that s is a non-empty name made of letters,
// digits, underscores and hyphens. Names that pass can be joined into a
// filesystem path without escaping the parent directory.
func ValidateIdentifier(kind, s string) error {
	if len(s) > MaxIdentifierLength {
		return fmt.Errorf("%w: %s is longer than %d characters", ErrInvalidIdentifier, kind, MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, kind, s)
	}
	return nil
}

// ValidateBodySize checks that data does not exceed limit bytes.
// If limit is <= 0, DefaultMaxBodySize is used.
func ValidateBodySize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrBodyTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth checks that the JSON in data does not nest deeper
// than limit levels. This protects against JSON bombs that could exhaust
// stack or memory. If limit is <= 0, DefaultMaxJSONDepth is used.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
