package tools

import "github.com/flemzord/toolbench/pkg/toolkit"

type WrongShape struct{ toolkit.Tool }

func (WrongShape) Invoke(args map[string]any) string {
	return "nope"
}
