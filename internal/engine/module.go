package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/dataset"
	"github.com/flemzord/toolbench/internal/reload"
	"github.com/flemzord/toolbench/internal/security"
	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/telemetry"
)

// ServiceName is the AppContext service the engine is registered under.
const ServiceName = "engine"

const defaultWatchInterval = 2 * time.Second

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
	_ core.Reloader     = (*Module)(nil)
)

// ModuleConfig configures the engine.replay module.
type ModuleConfig struct {
	// Root is the environments root. Defaults to the application's
	// environments directory.
	Root string `yaml:"root"`

	// DisableCache re-reads baselines from storage on every operation.
	DisableCache bool `yaml:"disable_cache"`

	// UnitCacheSize bounds the synthesized units kept in memory.
	UnitCacheSize int `yaml:"unit_cache_size"`

	// Watch polls the root and drops cached baselines of changed
	// environments. Defaults to true.
	Watch *bool `yaml:"watch"`

	PollInterval time.Duration `yaml:"poll_interval"`
}

func (c *ModuleConfig) defaults() {
	if c.UnitCacheSize == 0 {
		c.UnitCacheSize = defaultUnitCacheSize
	}
	if c.Watch == nil {
		w := true
		c.Watch = &w
	}
	if c.PollInterval == 0 {
		c.PollInterval = defaultWatchInterval
	}
}

func (c *ModuleConfig) validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("engine: root is required"))
	}
	if c.UnitCacheSize < 0 {
		errs = append(errs, fmt.Errorf("engine: unit_cache_size must be positive, got %d", c.UnitCacheSize))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("engine: poll_interval must be positive, got %s", c.PollInterval))
	}
	return errors.Join(errs...)
}

// Module hosts the shared Engine.
type Module struct {
	config ModuleConfig
	logger *slog.Logger
	engine *Engine

	watcher *reload.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "engine.replay",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("engine: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. It uses the session store and
// audit logger registered by earlier modules when present.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if m.config.Root == "" {
		m.config.Root = ctx.EnvironmentsRoot
	}

	store, ok := core.ServiceAs[session.Store](ctx, "session.store")
	if !ok {
		store = session.NewMemoryStore()
		m.logger.Info("no persistent session store configured, sessions are kept in memory")
	}
	audit, _ := core.ServiceAs[*security.AuditLogger](ctx, "security.audit")

	loader := dataset.NewLoader(dataset.LoaderConfig{
		Root:         m.config.Root,
		DisableCache: m.config.DisableCache,
		Logger:       m.logger,
	})
	eng, err := New(Config{
		Loader:        loader,
		Store:         store,
		Logger:        m.logger,
		Audit:         audit,
		Registerer:    telemetry.Registry(ctx),
		UnitCacheSize: m.config.UnitCacheSize,
	})
	if err != nil {
		return err
	}
	m.engine = eng
	ctx.RegisterService(ServiceName, eng)

	m.logger.Info("engine provisioned",
		"root", loader.Root(),
		"cache", !m.config.DisableCache,
		"watch", *m.config.Watch,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	loader := m.engine.Loader()
	ok, err := loader.FS().Exists(context.Background(), loader.Root())
	if err != nil || !ok {
		return fmt.Errorf("engine: environments root %s is not accessible", loader.Root())
	}
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	root := m.engine.Loader().Root()
	if !*m.config.Watch || strings.Contains(root, "://") {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.watcher = reload.NewWatcher(reload.WatcherConfig{
		Path:         root,
		PollInterval: m.config.PollInterval,
	})
	m.watcher.Start(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-m.watcher.Events():
				m.invalidate(evt)
			}
		}
	}()
	return nil
}

func (m *Module) invalidate(evt reload.Event) {
	if len(evt.Names) == 0 {
		m.engine.Invalidate("")
		return
	}
	for _, name := range evt.Names {
		m.engine.Invalidate(name)
	}
	m.logger.Info("environment baselines changed", "environments", evt.Names)
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
		m.watcher.Stop()
		m.wg.Wait()
	}
	if m.engine != nil {
		m.engine.Close()
	}
	return nil
}

// Reload implements core.Reloader. Cached baselines are dropped so edited
// datasets are picked up; root changes require a restart.
func (m *Module) Reload(ctx *core.AppContext) error {
	if node, ok := ctx.ModuleConfig("engine.replay"); ok {
		var next ModuleConfig
		if err := node.Decode(&next); err != nil {
			return fmt.Errorf("engine: decode config: %w", err)
		}
		if next.Root != "" && next.Root != m.config.Root {
			m.logger.Warn("engine root changed, restart required", "current", m.config.Root, "configured", next.Root)
		}
	}
	m.engine.Invalidate("")
	return nil
}

// Engine returns the hosted engine.
func (m *Module) Engine() *Engine {
	return m.engine
}
