package gateway

import (
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status       string `json:"status"` // "ok" or "degraded"
	Sessions     int    `json:"sessions"`
	Environments int    `json:"environments"`
	Error        string `json:"error,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when the session store and the environments root are
// readable, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}

		sessions, err := g.engine.Sessions(r.Context())
		if err != nil {
			resp.Status, resp.Error = "degraded", "session store: "+err.Error()
		}
		resp.Sessions = len(sessions)

		envs, err := g.engine.Loader().Environments(r.Context())
		if err != nil && resp.Error == "" {
			resp.Status, resp.Error = "degraded", "environments: "+err.Error()
		}
		resp.Environments = len(envs)

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
