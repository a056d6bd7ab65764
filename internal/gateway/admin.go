package gateway

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/flemzord/toolbench/internal/config"
	"github.com/flemzord/toolbench/internal/core"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Loaded    bool   `json:"loaded"`
}

// handleGetAllModules lists all compiled modules (for /api/modules) and
// whether the running configuration loads them.
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
				Loaded:    g.appCtx.HasModuleConfig(string(m.ID)),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// configPath returns the path of the running configuration file, as
// registered by the application.
func (g *Gateway) configPath() string {
	path, _ := core.ServiceAs[string](g.appCtx, "config.path")
	return path
}

// secretPattern matches YAML keys that likely contain secrets.
var secretPattern = regexp.MustCompile(`(?i)(secret|token|password|pass|key|headers)`)

// handleGetConfig returns the current config with secrets redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cfgPath := g.configPath()
		if cfgPath == "" {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "config path not set")
			return
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "failed to load config")
			return
		}

		modules := make(map[string]any, len(cfg.Modules))
		for id, node := range cfg.Modules {
			var v any
			if err := node.Decode(&v); err != nil {
				writeError(w, http.StatusInternalServerError, "internal", "failed to decode module "+id)
				return
			}
			modules[id] = normalizeYAML(v)
		}

		raw, err := json.Marshal(cfg)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "failed to serialize config")
			return
		}
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "failed to parse config")
			return
		}
		generic["modules"] = modules

		redactSecrets(generic)
		writeJSON(w, http.StatusOK, generic)
	}
}

// normalizeYAML converts map[any]any nodes produced by yaml into JSON-safe maps.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeYAML(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if s, ok := k.(string); ok {
				out[s] = normalizeYAML(item)
			}
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalizeYAML(item)
		}
		return val
	default:
		return v
	}
}

// redactSecrets walks a map and replaces values whose keys match the secret pattern.
func redactSecrets(m map[string]any) {
	for k, v := range m {
		if secretPattern.MatchString(k) {
			switch v.(type) {
			case string, map[string]any:
				m[k] = "***REDACTED***"
			}
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			redactSecrets(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					redactSecrets(sub)
				}
			}
		}
	}
}

// handleReloadConfig triggers a hot-reload of the configuration.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfgPath := g.configPath()
		reloader, ok := core.ServiceAs[ConfigReloader](g.appCtx, "reload.handler")
		if cfgPath == "" || !ok {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "config reload not available")
			return
		}

		if err := reloader.HandleReload(r.Context(), cfgPath); err != nil {
			g.logger.Error("config reload failed", "error", err)
			writeError(w, http.StatusBadRequest, "reload_failed", err.Error())
			return
		}

		g.logger.Info("configuration reloaded successfully")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}
