package tools

import (
	"strings"

	tk "github.com/flemzord/toolbench/pkg/toolkit"
)

type LookupPrice struct {
	tk.Tool
}

func (t *LookupPrice) Invoke(data, args map[string]any) (interface{}, error) {
	sku := strings.ToUpper(args["sku"].(string))
	return map[string]any{"sku": sku, "price": 9.5}, nil
}

func (t *LookupPrice) GetInfo() map[string]any {
	return map[string]any{
		"name":        "lookup_price",
		"description": "Look up a price.",
		"parameters": map[string]any{
			"properties": map[string]any{
				"sku":      map[string]any{"type": "string"},
				"discount": map[string]any{"type": "number", "minimum": -1.5, "maximum": +(1)},
				"tiers": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "object", "properties": map[string]any{"qty": map[string]any{"type": "number"}}},
				},
			},
			"required": []string{"sku"},
			"examples": []map[string]any{{"sku": "a"}, {"sku": 'b'}},
			"deprecated": false,
			"default":    nil,
		},
	}
}
