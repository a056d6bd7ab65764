package tools

import "github.com/flemzord/toolbench/pkg/toolkit"

// CountWidgets reports how many widgets exist.
type CountWidgets struct{ toolkit.Tool }

func (CountWidgets) Invoke(data map[string]any, args map[string]any) (any, error) {
	widgets, _ := data["widgets"].(map[string]any)
	return map[string]any{"count": len(widgets)}, nil
}

func (CountWidgets) GetInfo() map[string]any {
	return map[string]any{
		"name":        "count_widgets",
		"description": "Count the widgets.",
		"parameters":  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}
