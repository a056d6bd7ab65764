// Package app provides the shared entry point of the toolbench binary: it
// loads the configuration, builds the logger and audit log, loads modules
// and runs the signal loop.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/flemzord/toolbench/internal/config"
	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/reload"
	"github.com/flemzord/toolbench/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the configured persistent data directory.
	DataDir string

	// EnvironmentsRoot overrides the configured environments root.
	EnvironmentsRoot string

	// LogLevel overrides the configured log level when non-empty.
	LogLevel string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Runtime is a configured application whose modules are loaded but not
// started. CLI commands use it to reach the engine without serving.
type Runtime struct {
	Config     *config.Config
	ConfigPath string
	Logger     *slog.Logger
	Audit      *security.AuditLogger
	AppCtx     *core.AppContext
	App        *core.App

	auditFile *os.File
}

// Setup loads and validates the configuration and loads the modules keep
// accepts (all of them when keep is nil).
func Setup(params RunParams, keep func(id string) bool) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := security.NewRedactor()
	logger, err := NewLogger(cfg.Log, params.LogLevel, params.LogOutput, redactor)
	if err != nil {
		return nil, err
	}

	dataDir := firstNonEmpty(params.DataDir, cfg.DataDir, DefaultDataDir())
	envRoot := firstNonEmpty(params.EnvironmentsRoot, cfg.Environments, DefaultEnvironmentsRoot())
	if !strings.Contains(envRoot, "://") && !filepath.IsAbs(envRoot) {
		// Relative roots are anchored at the config file.
		envRoot = filepath.Join(filepath.Dir(cfgPath), envRoot)
	}

	rt := &Runtime{Config: cfg, ConfigPath: cfgPath, Logger: logger}
	if err := rt.openAudit(cfg.Audit, dataDir, redactor); err != nil {
		return nil, err
	}

	appCtx := core.NewAppContext(logger, dataDir, envRoot)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	// Register shared services for cross-module discovery.
	appCtx.RegisterService(security.RedactorService, redactor)
	appCtx.RegisterService("security.audit", rt.Audit)
	appCtx.RegisterService("config.path", cfgPath)
	rt.AppCtx = appCtx

	ids := config.Resolve(cfg)
	if keep != nil {
		ids = filterIDs(ids, keep)
	}
	rt.App = core.NewApp(appCtx)
	if err := rt.App.LoadModules(ids); err != nil {
		rt.closeAudit()
		return nil, err
	}
	return rt, nil
}

// EngineOnly keeps the modules an offline command needs: the engine, its
// session store and telemetry.
func EngineOnly(id string) bool {
	switch core.ModuleID(id).Namespace() {
	case "engine", "session", "telemetry":
		return true
	}
	return false
}

// Engine returns the engine registered by the engine.replay module.
func (rt *Runtime) Engine() (*engine.Engine, error) {
	eng, ok := core.ServiceAs[*engine.Engine](rt.AppCtx, engine.ServiceName)
	if !ok {
		return nil, fmt.Errorf("engine service not available (is %s configured?)", config.RequiredModule)
	}
	return eng, nil
}

// Close stops every loaded module and closes the audit log.
func (rt *Runtime) Close() {
	rt.App.Unload()
	rt.closeAudit()
}

func (rt *Runtime) openAudit(cfg config.AuditConfig, dataDir string, redactor *security.Redactor) error {
	auditCfg := security.AuditLoggerConfig{Redactor: redactor}
	if !cfg.Disabled {
		path := firstNonEmpty(cfg.Path, "audit.jsonl")
		if !filepath.IsAbs(path) {
			path = filepath.Join(dataDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("creating audit directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		rt.auditFile = f
		auditCfg.Writer = f
	}
	rt.Audit = security.NewAuditLogger(auditCfg)
	return nil
}

func (rt *Runtime) closeAudit() {
	if rt.auditFile != nil {
		_ = rt.auditFile.Close()
		rt.auditFile = nil
	}
}

// Run loads configuration, starts all modules, and blocks until SIGINT or
// SIGTERM is received.
func Run(params RunParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, params)
}

// Serve starts all configured modules and blocks until ctx is done. SIGHUP
// and file-change events trigger a live configuration reload for modules
// that implement core.Reloader.
func Serve(ctx context.Context, params RunParams) error {
	rt, err := Setup(params, nil)
	if err != nil {
		return err
	}
	defer rt.closeAudit()
	logger := rt.Logger

	// Build and register the reload handler BEFORE Start so gateway can use it.
	handler := reload.NewHandler(rt.App, rt.AppCtx, rt.Audit)
	rt.AppCtx.RegisterService("reload.handler", handler)

	if err := rt.App.Start(); err != nil {
		return err
	}
	logger.Info("toolbench started",
		"version", params.Version,
		"config", rt.ConfigPath,
		"environments", rt.AppCtx.EnvironmentsRoot,
	)

	// --- signal handling ---
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	// --- config file watcher ---
	watcher := reload.NewWatcher(reload.WatcherConfig{Path: rt.ConfigPath})
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	// --- main event loop ---
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down", "reason", context.Cause(ctx))
			rt.App.Stop()
			logger.Info("shutdown complete")
			return nil
		case <-hupCh:
			logger.Info("SIGHUP received, reloading configuration")
			if err := handler.HandleReload(watchCtx, rt.ConfigPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.Path)
			if err := handler.HandleReload(watchCtx, rt.ConfigPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// NewLogger builds the process logger: a text or JSON handler wrapped in a
// redacting handler. override, when non-empty, replaces cfg.Level.
func NewLogger(cfg config.LogConfig, override string, out io.Writer, redactor *security.Redactor) (*slog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	level, err := ParseLevel(firstNonEmpty(override, cfg.Level))
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	switch cfg.Format {
	case "", "text":
		inner = slog.NewTextHandler(out, opts)
	case "json":
		inner = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// ParseLevel converts a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/toolbench/toolbench.yaml, then
// ~/.config/toolbench/toolbench.yaml, then ./toolbench.yaml.
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "toolbench", config.FileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "toolbench", config.FileName))
	}

	candidates = append(candidates, config.FileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/toolbench if set, otherwise ~/.local/share/toolbench.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "toolbench")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "toolbench")
}

// DefaultEnvironmentsRoot is ./environments, relative to the config file.
func DefaultEnvironmentsRoot() string {
	return "environments"
}

func filterIDs(ids []string, keep func(string) bool) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
