package tools

import (
	"fmt"

	"github.com/flemzord/toolbench/pkg/toolkit"
)

// CreateWidget creates a widget owned by an active user.
type CreateWidget struct{ toolkit.Tool }

func (CreateWidget) Invoke(data map[string]any, args map[string]any) (any, error) {
	owner, _ := args["owner"].(string)
	users, _ := data["users"].(map[string]any)
	if _, ok := users[owner]; !ok {
		return map[string]any{"error": "unknown owner"}, nil
	}
	widgets, _ := data["widgets"].(map[string]any)
	id := fmt.Sprint(len(widgets) + 1)
	widgets[id] = map[string]any{"id": id, "owner": owner}
	return map[string]any{"id": id}, nil
}

func (CreateWidget) GetInfo() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "create_widget",
			"description": "Create a widget for an owner.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"owner": map[string]any{"type": "string", "description": "Owner user ID."},
					"label": map[string]any{"type": "string"},
				},
				"required": []any{"owner"},
			},
		},
	}
}
