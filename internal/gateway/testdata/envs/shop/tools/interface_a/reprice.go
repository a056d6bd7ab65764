package tools

import (
	"fmt"

	"github.com/flemzord/toolbench/pkg/toolkit"
)

// Reprice changes the unit price of an item.
type Reprice struct{ toolkit.Tool }

func (Reprice) Invoke(data map[string]any, args map[string]any) (any, error) {
	id, _ := args["item"].(string)
	items, _ := data["items"].(map[string]any)
	item, ok := items[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown item %q", id)
	}
	item["price"] = args["price"]
	return map[string]any{"item": id, "price": args["price"]}, nil
}

func (Reprice) GetInfo() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "reprice",
			"description": "Change the unit price of an item.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item":  map[string]any{"type": "string"},
					"price": map[string]any{"type": "number"},
				},
				"required": []string{"item", "price"},
			},
		},
	}
}
