// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"sync"

	"github.com/flemzord/toolbench/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	ToolName   string
	ToolInfo   tool.Info
	InvokeFunc func(data, args map[string]any) (any, error)

	mu    sync.Mutex
	calls []map[string]any
}

// Name implements tool.Tool.
func (m *MockTool) Name() string {
	if m.ToolName != "" {
		return m.ToolName
	}
	if m.ToolInfo.Name != "" {
		return m.ToolInfo.Name
	}
	return "mock_tool"
}

// Info implements tool.Tool.
func (m *MockTool) Info() tool.Info {
	info := m.ToolInfo
	if info.Name == "" {
		info.Name = m.Name()
	}
	return info
}

// Invoke implements tool.Tool. It records the arguments of every call.
func (m *MockTool) Invoke(data, args map[string]any) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(data, args)
	}
	return map[string]any{"status": "ok"}, nil
}

// Calls returns the arguments of every Invoke call so far.
func (m *MockTool) Calls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, len(m.calls))
	copy(out, m.calls)
	return out
}

// Registry builds a registry holding the given tools. It panics on a
// registration error.
func Registry(tools ...tool.Tool) *tool.Registry {
	r := tool.NewRegistry()
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}
