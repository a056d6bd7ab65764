package security

import (
	"context"
	"log/slog"
)

// RedactingHandler wraps a slog.Handler and masks secrets before records
// reach it: the message, string attributes, attributes whose key names a
// secret, and argument maps logged as values.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps inner.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// Enabled delegates to the inner handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs implements slog.Handler. Attributes are redacted once, here.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	// Resolve LogValuers first so their final form is inspected.
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); s != "" && SecretKey(a.Key) {
			a.Value = slog.StringValue(RedactPlaceholder)
		} else {
			a.Value = slog.StringValue(h.redactor.Redact(s))
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		redacted := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			redacted[i] = h.redactAttr(ga)
		}
		a.Value = slog.GroupValue(redacted...)
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case map[string]any:
			a.Value = slog.AnyValue(h.redactor.RedactArguments(v))
		case error:
			if msg := h.redactor.Redact(v.Error()); msg != v.Error() {
				a.Value = slog.StringValue(msg)
			}
		default:
			resolved := a.Value.String()
			if redacted := h.redactor.Redact(resolved); redacted != resolved {
				a.Value = slog.StringValue(redacted)
			}
		}
	}
	return a
}
