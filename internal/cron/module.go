package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolbench/internal/core"
)

// ServiceName is the AppContext service the scheduler is registered under.
const ServiceName = "cron.scheduler"

const defaultMaxIdle = 24 * time.Hour

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// ModuleConfig configures the cron.sessions module.
type ModuleConfig struct {
	// MaxIdle is how long a session may stay unused before it is pruned.
	MaxIdle time.Duration `yaml:"max_idle"`

	// Schedule of the idle-session sweep. Defaults to every five minutes.
	Schedule string `yaml:"schedule"`

	// RefreshSchedule enables a periodic drop of every cached baseline.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

func (c *ModuleConfig) defaults() {
	if c.MaxIdle == 0 {
		c.MaxIdle = defaultMaxIdle
	}
}

func (c *ModuleConfig) validate() error {
	if c.MaxIdle < time.Minute {
		return fmt.Errorf("cron: max_idle must be at least 1m, got %s", c.MaxIdle)
	}
	return nil
}

// Module runs the maintenance jobs of the engine.
type Module struct {
	config    ModuleConfig
	logger    *slog.Logger
	scheduler *Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cron.sessions",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("cron: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. It requires the engine service.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	pruner, ok := core.ServiceAs[SessionPruner](ctx, "engine")
	if !ok {
		return errors.New("cron: engine service not available")
	}

	m.scheduler = NewScheduler(m.logger)
	if err := m.scheduler.RegisterJob(&SessionCleanupJob{
		Pruner:       pruner,
		MaxIdle:      m.config.MaxIdle,
		Logger:       m.logger,
		ScheduleExpr: m.config.Schedule,
	}); err != nil {
		return err
	}

	if m.config.RefreshSchedule != "" {
		inv, ok := core.ServiceAs[BaselineInvalidator](ctx, "engine")
		if !ok {
			return errors.New("cron: engine service cannot invalidate baselines")
		}
		if err := m.scheduler.RegisterJob(&BaselineRefreshJob{
			Invalidator:  inv,
			Logger:       m.logger,
			ScheduleExpr: m.config.RefreshSchedule,
		}); err != nil {
			return err
		}
	}

	ctx.RegisterService(ServiceName, m.scheduler)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Stop(ctx)
}

// Scheduler returns the module's scheduler.
func (m *Module) Scheduler() *Scheduler {
	return m.scheduler
}
