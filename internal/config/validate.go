package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/toolbench/internal/core"
)

// RequiredModule must always be configured.
const RequiredModule = "engine.replay"

var (
	logLevels  = []string{"", "debug", "info", "warn", "error"}
	logFormats = []string{"", "text", "json"}
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures the engine module is present,
// checks that all referenced module IDs exist in the registry and that at
// most one session backend is configured.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if _, ok := cfg.Modules[RequiredModule]; !ok {
		errs = append(errs, fmt.Errorf("config: module %q must be configured", RequiredModule))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	var backends []string
	for _, info := range core.GetModulesByNamespace("session") {
		if _, ok := cfg.Modules[string(info.ID)]; ok {
			backends = append(backends, string(info.ID))
		}
	}
	if len(backends) > 1 {
		errs = append(errs, fmt.Errorf("config: only one session backend may be configured, got %s", strings.Join(backends, ", ")))
	}

	if !slices.Contains(logLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", cfg.Log.Level))
	}
	if !slices.Contains(logFormats, cfg.Log.Format) {
		errs = append(errs, fmt.Errorf("config: log.format %q is not one of text, json", cfg.Log.Format))
	}

	return errors.Join(errs...)
}
