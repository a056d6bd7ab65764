// Package tool defines the Tool interface the execution engine dispatches to,
// the per-selection Registry, and the table of statically registered tool sets.
package tool

// Func is the executable entry point of a tool. It mutates data in place and
// returns a result payload. A non-nil error means the call failed and must
// not be recorded.
type Func func(data map[string]any, args map[string]any) (any, error)

// Tool is the interface every invocable tool implements, whether it was
// synthesized from source or compiled into the binary.
type Tool interface {
	// Name returns the qualified name used for dispatch.
	Name() string

	// Info returns presentation metadata.
	Info() Info

	// Invoke runs the tool against data.
	Invoke(data map[string]any, args map[string]any) (any, error)
}

// Adapt wraps a Func and its metadata as a Tool. The name is taken from info.
func Adapt(info Info, fn Func) Tool {
	return &funcTool{info: info, fn: fn}
}

type funcTool struct {
	info Info
	fn   Func
}

func (t *funcTool) Name() string { return t.info.Name }
func (t *funcTool) Info() Info   { return t.info }

func (t *funcTool) Invoke(data map[string]any, args map[string]any) (any, error) {
	return t.fn(data, args)
}
