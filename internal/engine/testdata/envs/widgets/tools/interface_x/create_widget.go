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
	user, ok := users[owner].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown owner %q", owner)
	}
	status, _ := user["status"].(string)
	if status != "active" {
		return map[string]any{"success": false, "error": "owner is not active"}, nil
	}
	widgets, ok := data["widgets"].(map[string]any)
	if !ok {
		widgets = map[string]any{}
		data["widgets"] = widgets
	}
	id := fmt.Sprintf("w%d", len(widgets)+1)
	widget := map[string]any{"id": id, "owner": owner}
	if tags, ok := args["tags"]; ok {
		widget["tags"] = tags
	}
	widgets[id] = widget
	return map[string]any{"success": true, "widget_id": id}, nil
}

func (CreateWidget) GetInfo() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "create_widget",
			"description": "Create a widget for an active user.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"owner": map[string]any{"type": "string", "description": "User id of the owner."},
					"tags":  map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
				},
				"required": []string{"owner"},
			},
		},
	}
}
