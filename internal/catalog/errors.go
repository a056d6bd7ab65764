package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceDir is returned when the tool-source directory cannot be listed.
	ErrSourceDir = errors.New("tool source directory unavailable")

	// ErrEmptyCatalog is returned when a directory yields no usable tool.
	ErrEmptyCatalog = errors.New("no tools discovered")

	// ErrNonLiteral is returned when a metadata expression is not a literal.
	ErrNonLiteral = errors.New("metadata is not a literal")
)

// Kind classifies a per-file discovery problem.
type Kind string

// Discovery problem kinds.
const (
	KindRead         Kind = "read"
	KindParse        Kind = "parse"
	KindNoUnit       Kind = "no_unit"
	KindNoEntry      Kind = "no_entry"
	KindBadSignature Kind = "bad_signature"
	KindMetadata     Kind = "non_literal_metadata"
	KindDuplicate    Kind = "duplicate_name"
)

// Skipped reports whether a problem of this kind drops the tool from the catalog.
// Non-literal metadata only degrades the descriptor.
func (k Kind) Skipped() bool {
	return k != KindMetadata
}

// DiscoveryError records a problem with one source file. Discovery never
// fails because of a single file; these are collected as diagnostics.
type DiscoveryError struct {
	File string `json:"file"`
	Type string `json:"type,omitempty"`
	Kind Kind   `json:"kind"`
	Err  error  `json:"-"`
}

func (e *DiscoveryError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s (%s): %s: %v", e.File, e.Type, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.File, e.Kind, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Diagnostic is the presentation form of a DiscoveryError.
type Diagnostic struct {
	File    string `json:"file"`
	Type    string `json:"type,omitempty"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Skipped bool   `json:"skipped"`
}

// Diagnostic converts e for presentation.
func (e *DiscoveryError) Diagnostic() Diagnostic {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return Diagnostic{File: e.File, Type: e.Type, Kind: e.Kind, Message: msg, Skipped: e.Kind.Skipped()}
}
