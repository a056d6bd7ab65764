package tools

import (
	"fmt"

	"github.com/flemzord/toolbench/pkg/toolkit"
)

// ComputedInfo has metadata that is built at runtime.
type ComputedInfo struct{ toolkit.Tool }

func (ComputedInfo) Invoke(data map[string]any, args map[string]any) (any, error) {
	return "computed", nil
}

func (ComputedInfo) GetInfo() map[string]any {
	return map[string]any{"name": fmt.Sprintf("computed_%d", 1)}
}
