package engine

import (
	"fmt"

	"github.com/flemzord/toolbench/internal/dataset"
	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/tool"
)

// Replay folds history over a private copy of baseline and returns the
// resulting dataset. baseline is not modified.
func Replay(baseline dataset.Dataset, history []session.Action, reg *tool.Registry) (dataset.Dataset, error) {
	data := baseline.Clone()
	if err := Apply(data, history, reg); err != nil {
		return nil, err
	}
	return data, nil
}

// Apply re-executes history against data in place, in order. Return values
// are discarded. Each entry receives its own copy of the stored arguments.
func Apply(data dataset.Dataset, history []session.Action, reg *tool.Registry) error {
	for i, a := range history {
		t, err := reg.Get(a.Tool)
		if err != nil {
			return &ReplayError{Seq: i, Tool: a.Tool, Err: err}
		}
		if _, err := call(t, data, jsonx.CloneObject(a.Arguments)); err != nil {
			return &ReplayError{Seq: i, Tool: a.Tool, Err: err}
		}
	}
	return nil
}

// panicError carries a value recovered from a tool body.
type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// call invokes t, turning a panic into a *panicError.
func call(t tool.Tool, data dataset.Dataset, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &panicError{value: r}
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	return t.Invoke(data, args)
}
