package tools

import (
	"fmt"

	"github.com/flemzord/toolbench/pkg/toolkit"
)

// RenameUser changes the display name of a user.
type RenameUser struct{ toolkit.Tool }

func (RenameUser) Invoke(data map[string]any, args map[string]any) (any, error) {
	id, _ := args["user_id"].(string)
	name, _ := args["name"].(string)
	users, _ := data["users"].(map[string]any)
	user, ok := users[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown user %q", id)
	}
	user["name"] = name
	return map[string]any{"user_id": id, "name": name}, nil
}

func (RenameUser) GetInfo() map[string]any {
	return map[string]any{
		"name":        "rename_user",
		"description": "Rename a user.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_id": map[string]any{"type": "string"},
				"name":    map[string]any{"type": "string"},
			},
		},
	}
}
