package gateway

import (
	"errors"
	"net/http"

	"github.com/flemzord/toolbench/internal/catalog"
	"github.com/flemzord/toolbench/internal/dataset"
	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/security"
	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/synth"
	"github.com/flemzord/toolbench/internal/tool"
)

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Tool  string `json:"tool,omitempty"`
	Seq   *int   `json:"seq,omitempty"`
}

// classify maps an engine error to an HTTP status and a stable kind.
func classify(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}

	var (
		ierr *engine.InvocationError
		rerr *engine.ReplayError
		serr *synth.SynthesisError
	)
	switch {
	case errors.As(err, &ierr):
		resp.Kind, resp.Tool = "invocation_error", ierr.Tool
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &rerr):
		resp.Kind, resp.Tool, resp.Seq = "replay_drift", rerr.Tool, &rerr.Seq
		return http.StatusConflict, resp
	case errors.As(err, &serr):
		resp.Kind = "synthesis_error"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, catalog.ErrEmptyCatalog):
		resp.Kind = "empty_catalog"
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, tool.ErrToolNotFound):
		resp.Kind = "tool_not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, session.ErrNotFound):
		resp.Kind = "session_not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, dataset.ErrEnvironmentNotFound), errors.Is(err, catalog.ErrSourceDir):
		resp.Kind = "environment_not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, session.ErrConflict):
		resp.Kind = "conflict"
		return http.StatusConflict, resp
	case errors.Is(err, engine.ErrClosed):
		resp.Kind = "unavailable"
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, security.ErrBodyTooLarge):
		resp.Kind = "body_too_large"
		return http.StatusRequestEntityTooLarge, resp
	case errors.Is(err, security.ErrInvalidIdentifier),
		errors.Is(err, security.ErrJSONTooDeep),
		errors.Is(err, security.ErrInvalidJSON),
		errors.Is(err, jsonx.ErrNotObject),
		errors.Is(err, errBadRequest),
		errors.Is(err, engine.ErrNoSession):
		resp.Kind = "bad_request"
		return http.StatusBadRequest, resp
	default:
		resp.Kind = "internal"
		return http.StatusInternalServerError, resp
	}
}

var errBadRequest = errors.New("bad request")

// writeEngineError writes err with the status classify picks.
func (g *Gateway) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code, resp := classify(err)
	if code == http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		resp.Error = "internal error"
	}
	writeJSON(w, code, resp)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorResponse{Error: msg, Kind: kind})
}

// writeJSON encodes v as JSON with the given status code. Decoded JSON
// trees keep their integer/float distinction.
func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := jsonx.Encode(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(data, '\n'))
}
