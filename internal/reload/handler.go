package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/toolbench/internal/config"
	"github.com/flemzord/toolbench/internal/core"
	"github.com/flemzord/toolbench/internal/security"
)

// Handler reloads application configuration and notifies modules.
type Handler struct {
	app    *core.App
	base   *core.AppContext
	logger *slog.Logger
	audit  *security.AuditLogger
}

// NewHandler creates a reload handler. Reloaded modules receive a context
// derived from base, so they keep access to the shared services.
func NewHandler(app *core.App, base *core.AppContext, audit *security.AuditLogger) *Handler {
	return &Handler{
		app:    app,
		base:   base,
		logger: base.Logger.With("component", "reload"),
		audit:  audit,
	}
}

// HandleReload loads a fresh config from disk, validates it, and calls Reload
// on all modules that implement core.Reloader.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.handleReload(ctx, cfg, configPath)
}

// HandleReloadFromConfig reloads modules from a pre-loaded, already-validated
// config. It does not re-validate.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	return h.handleReload(ctx, cfg, "")
}

func (h *Handler) handleReload(ctx context.Context, cfg *config.Config, source string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	appCtx := h.base.WithModuleConfigs(cfg.Modules)
	if err := h.app.ReloadModules(appCtx); err != nil {
		return fmt.Errorf("reloading modules: %w", err)
	}

	h.audit.Log(security.AuditEvent{Type: security.EventConfigChange, Detail: source})
	h.logger.Info("configuration reloaded successfully")
	return nil
}
