package tool

import (
	"fmt"
	"sync"
)

// Set is a compiled-in tool collection for one environment interface.
// Registered sets take precedence over source discovery.
type Set struct {
	Environment string
	Interface   string
	Tools       func() []Tool
}

var (
	sets   = make(map[string]Set)
	setsMu sync.RWMutex
)

func setKey(env, iface string) string { return env + "/" + iface }

// RegisterSet registers a compiled-in tool set. It panics on an incomplete
// set or a duplicate registration. Intended to be called from init() functions.
func RegisterSet(s Set) {
	if s.Environment == "" || s.Interface == "" {
		panic("tool set must name an environment and an interface")
	}
	if s.Tools == nil {
		panic(fmt.Sprintf("tool set %s: Tools function must not be nil", setKey(s.Environment, s.Interface)))
	}

	setsMu.Lock()
	defer setsMu.Unlock()

	key := setKey(s.Environment, s.Interface)
	if _, exists := sets[key]; exists {
		panic(fmt.Sprintf("tool set already registered: %s", key))
	}
	sets[key] = s
}

// LookupSet returns the registered set for an environment interface.
func LookupSet(env, iface string) (Set, bool) {
	setsMu.RLock()
	defer setsMu.RUnlock()
	s, ok := sets[setKey(env, iface)]
	return s, ok
}

// NewRegistryFromSet builds a Registry holding every tool of s.
func NewRegistryFromSet(s Set) (*Registry, error) {
	r := NewRegistry()
	for _, t := range s.Tools() {
		if err := r.Register(t); err != nil {
			return nil, fmt.Errorf("tool set %s: %w", setKey(s.Environment, s.Interface), err)
		}
	}
	return r, nil
}

// resetSets clears the set table. Only for testing.
func resetSets() {
	setsMu.Lock()
	defer setsMu.Unlock()
	sets = make(map[string]Set)
}
