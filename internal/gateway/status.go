package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/toolbench/internal/cron"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime           int64            `json:"uptime_seconds"`
	Sessions         int              `json:"sessions"`
	EnvironmentsRoot string           `json:"environments_root"`
	Jobs             []cron.JobStatus `json:"jobs,omitempty"`
	AuditWriteErrors int64            `json:"audit_write_errors"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Uptime:           int64(time.Since(g.startedAt).Seconds()),
			EnvironmentsRoot: g.engine.Loader().Root(),
			AuditWriteErrors: g.audit.WriteErrors(),
		}

		if sessions, err := g.engine.Sessions(r.Context()); err == nil {
			resp.Sessions = len(sessions)
		}
		if g.scheduler != nil {
			resp.Jobs = g.scheduler.Status()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
