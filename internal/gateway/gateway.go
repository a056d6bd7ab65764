// Package gateway exposes the engine over HTTP: environment and session
// management, tool invocation, a websocket commit feed, health, status and
// Prometheus metrics. It binds to loopback by default and follows the
// module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/cron"
	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/security"
	"github.com/flemzord/toolbench/internal/telemetry"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// ConfigReloader reloads the application configuration from a file.
type ConfigReloader interface {
	HandleReload(ctx context.Context, path string) error
}

// Gateway is the HTTP gateway module. It is a leaf module; nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	engine    *engine.Engine
	audit     *security.AuditLogger
	registry  *prometheus.Registry
	metrics   *Metrics
	server    *http.Server
	startedAt time.Time

	// Optional, resolved at Start() via the service registry.
	scheduler *cron.Scheduler

	// ctx is the base context of every request; Stop cancels it so
	// long-lived websocket streams end.
	ctx     context.Context
	cancel  context.CancelFunc
	streams sync.WaitGroup
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The engine service is required.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger

	eng, ok := core.ServiceAs[*engine.Engine](ctx, engine.ServiceName)
	if !ok {
		return errors.New("gateway: engine service not available")
	}
	g.engine = eng
	g.audit, _ = core.ServiceAs[*security.AuditLogger](ctx, "security.audit")
	if r, ok := core.ServiceAs[*security.Redactor](ctx, security.RedactorService); ok {
		r.SetSecrets("gateway.http", g.config.Auth.BearerToken, g.config.Auth.BasicPass)
	}
	g.registry = telemetry.Registry(ctx)
	g.metrics = NewMetrics(g.registry)
	g.ctx, g.cancel = context.WithCancel(context.Background())

	ctx.RegisterService("gateway.metrics", g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	return g.config.validate()
}

// Start implements core.Starter. It resolves optional dependencies from the
// service registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.scheduler, _ = core.ServiceAs[*cron.Scheduler](g.appCtx, cron.ServiceName)
	g.startedAt = time.Now()

	if !g.config.Auth.IsConfigured() {
		g.logger.Warn("gateway API served without authentication", "addr", g.config.Bind)
	}

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
		BaseContext:  g.baseContext,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
// Open event streams are ended and waited for.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}

	var err error
	if g.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
		defer cancel()

		g.logger.Info("gateway shutting down")
		err = g.server.Shutdown(shutdownCtx)
	}
	g.streams.Wait()
	return err
}

// baseContext is the root of every request context.
func (g *Gateway) baseContext(net.Listener) context.Context {
	return g.ctx
}
