package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/flemzord/toolbench/internal/engine"
	"github.com/flemzord/toolbench/internal/session"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"closed engine", fmt.Errorf("invoke: %w", engine.ErrClosed), http.StatusServiceUnavailable, "unavailable"},
		{"missing session", session.ErrNotFound, http.StatusNotFound, "session_not_found"},
		{"no session id", engine.ErrNoSession, http.StatusBadRequest, "bad_request"},
		{"tool failure", &engine.InvocationError{Tool: "restock", Err: errors.New("out of stock")}, http.StatusUnprocessableEntity, "invocation_error"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, resp := classify(tt.err)
			if code != tt.wantCode || resp.Kind != tt.wantKind {
				t.Errorf("classify = %d %q, want %d %q", code, resp.Kind, tt.wantCode, tt.wantKind)
			}
			if resp.Error != tt.err.Error() {
				t.Errorf("error = %q, want %q", resp.Error, tt.err.Error())
			}
		})
	}
}
