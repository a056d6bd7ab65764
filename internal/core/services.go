package core

import "sync"

// serviceRegistry is shared by an AppContext and every context derived from it.
type serviceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

func newServiceRegistry() *serviceRegistry {
	return &serviceRegistry{services: make(map[string]any)}
}

// RegisterService exposes a value under name for cross-module discovery.
// Registering the same name twice replaces the previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.services[name] = svc
}

// Service returns the value registered under name.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.services[name]
	return svc, ok
}

// ServiceAs looks up name and asserts it to T.
func ServiceAs[T any](ctx *AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.Service(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
