package tools

import "github.com/flemzord/toolbench/pkg/toolkit"

type Incomplete struct{ toolkit.Tool }

func (Incomplete) GetInfo() map[string]any {
	return map[string]any{"name": "incomplete"}
}
