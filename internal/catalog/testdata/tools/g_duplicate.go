package tools

import "github.com/flemzord/toolbench/pkg/toolkit"

type CreateWidgetAgain struct{ toolkit.Tool }

func (CreateWidgetAgain) Invoke(data map[string]any, args map[string]any) (any, error) {
	return "second", nil
}

func (CreateWidgetAgain) GetInfo() map[string]any {
	return map[string]any{"name": "create_widget"}
}
