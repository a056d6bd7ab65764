package tools

import "strings"

func normalizeKey(s string) string { return strings.ToLower(s) }
