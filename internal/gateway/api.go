package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/security"
	"github.com/flemzord/toolbench/internal/session"
)

// readObject reads a bounded JSON object body. An empty body is an empty object.
func (g *Gateway) readObject(r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, int64(g.config.MaxBodySize)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", errBadRequest, err)
	}
	if err := security.ValidateBodySize(data, g.config.MaxBodySize); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	if err := security.ValidateJSONDepth(data, g.config.MaxJSONDepth); err != nil {
		return nil, err
	}
	obj, err := jsonx.DecodeObject(data)
	if err != nil {
		if errors.Is(err, jsonx.ErrNotObject) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", security.ErrInvalidJSON, err)
	}
	return obj, nil
}

func stringField(obj map[string]any, key string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", errBadRequest, key)
	}
	return s, nil
}

// handleListEnvironments lists the environments under the engine root.
func (g *Gateway) handleListEnvironments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		envs, err := g.engine.Loader().Environments(r.Context())
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, envs)
	}
}

// handleListSessions returns every session, most recently used first.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := g.engine.Sessions(r.Context())
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		if list == nil {
			list = []session.Summary{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// handleSelect runs Select. POST creates a session unless the body names
// one; PUT reselects the session in the path.
func (g *Gateway) handleSelect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := g.readObject(r)
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		env, err := stringField(body, "environment")
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		iface, err := stringField(body, "interface")
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}

		id := chi.URLParam(r, "id")
		code := http.StatusOK
		if id == "" {
			code = http.StatusCreated
			if id, err = stringField(body, "session_id"); err != nil {
				g.writeEngineError(w, r, err)
				return
			}
		}

		sum, err := g.engine.Select(r.Context(), id, env, iface)
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, code, sum)
	}
}

// sessionResponse is the body of GET /api/sessions/{id}.
type sessionResponse struct {
	*engine.CatalogSummary
	HistoryLen int `json:"history_len"`
}

func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sum, err := g.engine.Tools(r.Context(), id)
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		history, err := g.engine.History(r.Context(), id)
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{CatalogSummary: sum, HistoryLen: len(history)})
	}
}

// handleDeleteSession deletes a session by its ID.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleTools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := g.engine.Tools(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum.Tools)
	}
}

func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := g.engine.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		out := make([]any, len(history))
		for i, a := range history {
			out[i] = map[string]any{
				"seq":       int64(i),
				"tool":      a.Tool,
				"arguments": a.Arguments,
				"at":        a.At,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleState returns the replayed dataset, or one table of it with ?table=.
func (g *Gateway) handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := g.engine.State(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		if table := r.URL.Query().Get("table"); table != "" {
			if _, ok := state[table]; !ok {
				writeError(w, http.StatusNotFound, "table_not_found", "no table "+table)
				return
			}
			writeJSON(w, http.StatusOK, state[table])
			return
		}
		writeJSON(w, http.StatusOK, map[string]any(state))
	}
}

// handleSource returns the assembled unit text.
func (g *Gateway) handleSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := g.engine.Source(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				g.writeEngineError(w, r, err)
				return
			}
			writeError(w, http.StatusConflict, "no_source", err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/x-go; charset=utf-8")
		_, _ = io.WriteString(w, src)
	}
}

// handleInvoke runs one tool call. The body is
// {"tool": name, "arguments": {...}, "float_paths": [...]}.
func (g *Gateway) handleInvoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := g.readObject(r)
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		call, err := parseCall(body)
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}

		res, err := g.engine.Invoke(r.Context(), chi.URLParam(r, "id"), call)
		if err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		fields := make([]any, len(res.FloatFields))
		for i, f := range res.FloatFields {
			fields[i] = f
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"output":       res.Output,
			"float_fields": fields,
			"history_len":  int64(res.HistoryLen),
		})
	}
}

func parseCall(body map[string]any) (engine.Call, error) {
	name, err := stringField(body, "tool")
	if err != nil {
		return engine.Call{}, err
	}
	if name == "" {
		return engine.Call{}, fmt.Errorf("%w: tool is required", errBadRequest)
	}
	call := engine.Call{Tool: name, Arguments: map[string]any{}}

	if raw, ok := body["arguments"]; ok && raw != nil {
		args, ok := raw.(map[string]any)
		if !ok {
			return engine.Call{}, fmt.Errorf("%w: arguments must be an object", errBadRequest)
		}
		call.Arguments = args
	}
	if raw, ok := body["float_paths"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return engine.Call{}, fmt.Errorf("%w: float_paths must be an array", errBadRequest)
		}
		for _, item := range list {
			p, ok := item.(string)
			if !ok {
				return engine.Call{}, fmt.Errorf("%w: float_paths must hold strings", errBadRequest)
			}
			call.FloatPaths = append(call.FloatPaths, p)
		}
	}
	return call, nil
}

func (g *Gateway) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.engine.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
			g.writeEngineError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}
