package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAuditLogger_WritesJSONL(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: &buf,
		Now:    func() time.Time { return fixedTime },
	})

	logger.Log(AuditEvent{
		Type:        EventInvoke,
		SessionID:   "sess-1",
		Environment: "smart_home",
		Interface:   "1",
		ToolName:    "set_light",
		Arguments:   map[string]any{"room": "kitchen"},
	})

	var got AuditEvent
	if err := json.NewDecoder(&buf).Decode(&got); err != nil {
		t.Fatalf("failed to decode JSONL: %v", err)
	}

	if got.Type != EventInvoke {
		t.Errorf("type = %q, want %q", got.Type, EventInvoke)
	}
	if got.SessionID != "sess-1" || got.Environment != "smart_home" || got.ToolName != "set_light" {
		t.Errorf("event = %+v", got)
	}
	if got.Arguments["room"] != "kitchen" {
		t.Errorf("arguments = %v", got.Arguments)
	}
	if got.Timestamp != fixedTime {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, fixedTime)
	}
}

func TestAuditLogger_RedactsDetailAndArguments(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := NewRedactor()
	r.SetSecrets("gateway.http", "my-secret-key")

	logger := NewAuditLogger(AuditLoggerConfig{
		Writer:   &buf,
		Redactor: r,
	})

	args := map[string]any{
		"password": "hunter2",
		"nested":   map[string]any{"note": "uses my-secret-key"},
	}
	logger.Log(AuditEvent{
		Type:   EventInvoke,
		Detail: "calling with my-secret-key",
		Metadata: map[string]string{
			"arg": "value is my-secret-key here",
		},
		Arguments: args,
	})

	output := buf.String()
	for _, secret := range []string{"my-secret-key", "hunter2"} {
		if strings.Contains(output, secret) {
			t.Errorf("secret %q found in audit output: %s", secret, output)
		}
	}
	if !strings.Contains(output, RedactPlaceholder) {
		t.Errorf("expected placeholder in audit output: %s", output)
	}

	// The caller's arguments are untouched.
	if args["password"] != "hunter2" {
		t.Errorf("caller arguments mutated: %v", args)
	}
	if args["nested"].(map[string]any)["note"] != "uses my-secret-key" {
		t.Errorf("caller nested arguments mutated: %v", args)
	}
}

func TestAuditLogger_OnEventCallback(t *testing.T) {
	t.Parallel()

	var events []AuditEvent
	logger := NewAuditLogger(AuditLoggerConfig{
		OnEvent: func(e AuditEvent) {
			events = append(events, e)
		},
	})

	logger.Log(AuditEvent{Type: EventAuthSuccess, Detail: "admin"})
	logger.Log(AuditEvent{Type: EventAuthFailure, Detail: "intruder"})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventAuthSuccess {
		t.Errorf("events[0].type = %q, want %q", events[0].Type, EventAuthSuccess)
	}
	if events[1].Type != EventAuthFailure {
		t.Errorf("events[1].type = %q, want %q", events[1].Type, EventAuthFailure)
	}
}

func TestAuditLogger_AllEventTypes(t *testing.T) {
	t.Parallel()

	types := []EventType{
		EventSelect, EventInvoke, EventInvokeFailed, EventReplayDrift,
		EventReset, EventSessionDelete, EventAuthSuccess, EventAuthFailure,
		EventConfigChange,
	}

	var buf bytes.Buffer
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf})

	for _, et := range types {
		logger.Log(AuditEvent{Type: et})
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(types) {
		t.Fatalf("got %d lines, want %d", len(lines), len(types))
	}
	for i, line := range lines {
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if ev.Type != types[i] {
			t.Errorf("line %d type = %q, want %q", i, ev.Type, types[i])
		}
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewAuditLogger(AuditLoggerConfig{Writer: &buf})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEvent{Type: EventInvoke, Detail: "concurrent"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
}

func TestAuditLogger_NilWriter(t *testing.T) {
	t.Parallel()

	var called bool
	logger := NewAuditLogger(AuditLoggerConfig{
		OnEvent: func(_ AuditEvent) { called = true },
	})

	logger.Log(AuditEvent{Type: EventSelect})

	if !called {
		t.Error("expected OnEvent to be called even with nil writer")
	}
}

func TestAuditLogger_NilLogger(t *testing.T) {
	t.Parallel()

	var logger *AuditLogger
	logger.Log(AuditEvent{Type: EventSelect})
	if logger.WriteErrors() != 0 {
		t.Error("nil logger reported write errors")
	}
}

// errWriter always returns an error on Write to simulate a failing io.Writer.
type errWriter struct{}

func (errWriter) Write(_ []byte) (int, error) {
	return 0, errors.New("write failed")
}

func TestAuditLogger_WriteErrors_CountsFailures(t *testing.T) {
	t.Parallel()

	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: errWriter{},
	})

	logger.Log(AuditEvent{Type: EventInvoke})
	logger.Log(AuditEvent{Type: EventInvoke})

	if got := logger.WriteErrors(); got != 2 {
		t.Errorf("WriteErrors() = %d, want 2", got)
	}
}

func TestAuditLogger_WriteErrors_ZeroOnSuccess(t *testing.T) {
	t.Parallel()

	logger := NewAuditLogger(AuditLoggerConfig{
		Writer: io.Discard,
	})

	logger.Log(AuditEvent{Type: EventInvoke})
	logger.Log(AuditEvent{Type: EventInvoke})

	if got := logger.WriteErrors(); got != 0 {
		t.Errorf("WriteErrors() = %d, want 0", got)
	}
}
