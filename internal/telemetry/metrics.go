// Package telemetry provides the shared metrics registry and the OTLP
// tracing module.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/toolbench/internal/core"
)

// RegistryService is the AppContext service holding the metrics registry.
const RegistryService = "metrics.registry"

var registryMu sync.Mutex

// Registry returns the application metrics registry, creating and
// registering it on first use. It includes the Go runtime and process
// collectors.
func Registry(ctx *core.AppContext) *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	if reg, ok := core.ServiceAs[*prometheus.Registry](ctx, RegistryService); ok {
		return reg
	}
	reg := NewRegistry()
	ctx.RegisterService(RegistryService, reg)
	return reg
}

// NewRegistry creates a registry with the runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
