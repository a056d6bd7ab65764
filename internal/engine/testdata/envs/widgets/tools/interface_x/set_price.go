package tools

import (
	"fmt"

	"github.com/flemzord/toolbench/pkg/toolkit"
)

// SetPrice sets the price of a widget.
type SetPrice struct{ toolkit.Tool }

func (SetPrice) Invoke(data map[string]any, args map[string]any) (any, error) {
	id, _ := args["widget_id"].(string)
	widgets, _ := data["widgets"].(map[string]any)
	widget, ok := widgets[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unknown widget %q", id)
	}
	price, ok := args["price"].(float64)
	if !ok {
		return nil, fmt.Errorf("price must be a number, got %T", args["price"])
	}
	widget["price"] = price
	return map[string]any{"widget_id": id, "price": price}, nil
}

func (SetPrice) GetInfo() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "set_price",
			"description": "Set the price of a widget.",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"widget_id": map[string]any{"type": "string"},
					"price":     map[string]any{"type": "number"},
				},
				"required": []string{"widget_id", "price"},
			},
		},
	}
}
