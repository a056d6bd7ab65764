// Package toolkit is imported by tool source files. Embedding Tool in a
// struct marks that struct as a tool unit for catalog discovery.
//
// A tool unit declares two methods on the embedding type:
//
//	func (T) Invoke(data map[string]any, args map[string]any) (any, error)
//	func (T) GetInfo() map[string]any
//
// Invoke mutates data in place and returns a result payload. GetInfo must
// return a literal map describing the tool name, description and parameters.
package toolkit

// ImportPath is the import path tool sources use to reference this package.
// It is never copied into a synthesized unit.
const ImportPath = "github.com/flemzord/toolbench/pkg/toolkit"

// Tool is the marker embedded by every tool unit.
type Tool struct{}

// EntryMethod and InfoMethod are the method names catalog discovery looks for.
const (
	EntryMethod = "Invoke"
	InfoMethod  = "GetInfo"
)
