package tools

import (
	"errors"

	"github.com/flemzord/toolbench/pkg/toolkit"
)

// Explode mutates the dataset and then fails when asked to.
type Explode struct{ toolkit.Tool }

func (Explode) Invoke(data map[string]any, args map[string]any) (any, error) {
	data["scratch"] = map[string]any{"touched": true}
	mode, _ := args["mode"].(string)
	if mode == "error" {
		return nil, errors.New("refused")
	}
	return map[string]any{"ok": true}, nil
}

func (Explode) GetInfo() map[string]any {
	return map[string]any{
		"name":        "explode",
		"description": "Fail on demand.",
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{"mode": map[string]any{"type": "string"}},
		},
	}
}
