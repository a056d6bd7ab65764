package core

import "strings"

// ModuleID is a dotted identifier such as "session.sqlite" or "gateway.http".
// The part before the last dot is the namespace.
type ModuleID string

// Namespace returns everything before the last dot, or "" for top-level IDs.
func (id ModuleID) Namespace() string {
	s := string(id)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[:i]
	}
	return ""
}

// Name returns the last dotted label of the ID.
func (id ModuleID) Name() string {
	s := string(id)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every toolbench module. Optional lifecycle
// behavior is expressed through the interfaces in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
