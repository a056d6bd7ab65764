package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flemzord/toolbench/internal/jsonx"
)

// EventType categorizes audit events.
type EventType string

// Audit event types.
const (
	EventSelect        EventType = "select"
	EventInvoke        EventType = "invoke"
	EventInvokeFailed  EventType = "invoke_failed"
	EventReplayDrift   EventType = "replay_drift"
	EventReset         EventType = "reset"
	EventSessionDelete EventType = "session_delete"
	EventAuthSuccess   EventType = "auth_success"
	EventAuthFailure   EventType = "auth_failure"
	EventConfigChange  EventType = "config_change"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	Type        EventType         `json:"type"`
	SessionID   string            `json:"session_id,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Interface   string            `json:"interface,omitempty"`
	ToolName    string            `json:"tool_name,omitempty"`
	Arguments   map[string]any    `json:"arguments,omitempty"`
	Detail      string            `json:"detail,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are only
	// dispatched to OnEvent.
	Writer io.Writer

	// Redactor, if non-nil, is applied to Detail, Metadata and Arguments
	// before writing.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every event.
	OnEvent func(AuditEvent)

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// AuditLogger writes structured audit events as JSONL with optional redaction.
// A nil *AuditLogger discards events.
type AuditLogger struct {
	writer   io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
	mu       sync.Mutex

	writeErrors atomic.Int64
}

// NewAuditLogger creates an audit logger with the given configuration.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		now:      now,
	}
}

// Log writes an audit event. The timestamp is set automatically.
// The caller's Metadata and Arguments are never mutated.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now()

	if len(event.Metadata) > 0 {
		event.Metadata = maps.Clone(event.Metadata)
	}

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
		event.Arguments = l.redactor.RedactArguments(event.Arguments)
	} else if len(event.Arguments) > 0 {
		event.Arguments = jsonx.CloneObject(event.Arguments)
	}

	// Dispatch and write under the same lock to keep ordering consistent.
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}

	if l.writer != nil {
		if err := json.NewEncoder(l.writer).Encode(event); err != nil {
			l.writeErrors.Add(1)
		}
	}
}

// WriteErrors returns how many events failed to be written.
func (l *AuditLogger) WriteErrors() int64 {
	if l == nil {
		return 0
	}
	return l.writeErrors.Load()
}
