package tools

import "github.com/flemzord/toolbench/pkg/toolkit"

// LabelWidget refers to a package it never imports.
type LabelWidget struct{ toolkit.Tool }

func (LabelWidget) Invoke(data map[string]any, args map[string]any) (any, error) {
	return strconv.Itoa(len(data)), nil
}
