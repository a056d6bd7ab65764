package tools

import "github.com/flemzord/toolbench/pkg/toolkit"

type Broken struct{ toolkit.Tool

func (Broken) Invoke(data map[string]any, args map[string]any) (any, error) {
