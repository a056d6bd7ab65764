package tools

import (
	"fmt"

	"github.com/flemzord/toolbench/pkg/toolkit"
)

// Restock adds units of an item to the stock.
type Restock struct{ toolkit.Tool }

func (Restock) Invoke(data map[string]any, args map[string]any) (any, error) {
	id, _ := args["item"].(string)
	items, _ := data["items"].(map[string]any)
	item, ok := items[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown item %q", id)
	}
	amount, ok := args["amount"].(int64)
	if !ok {
		return nil, fmt.Errorf("amount must be an integer, got %T", args["amount"])
	}
	qty, _ := item["qty"].(int64)
	item["qty"] = qty + amount
	return map[string]any{"item": id, "qty": qty + amount}, nil
}

func (Restock) GetInfo() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "restock",
			"description": "Add units of an item to the stock.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item":   map[string]any{"type": "string"},
					"amount": map[string]any{"type": "integer"},
				},
				"required": []string{"item", "amount"},
			},
		},
	}
}
