package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/toolbench/internal/dataset"
	"github.com/flemzord/toolbench/internal/normalize"
	"github.com/flemzord/toolbench/internal/security"
	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/synth"
	"github.com/flemzord/toolbench/internal/tool"
)

// Inspection is the outcome of Inspect.
type Inspection struct {
	*CatalogSummary

	// Source is the assembled unit text. Empty for compiled-in tool sets.
	Source string `json:"source,omitempty"`
}

// Inspect discovers and synthesizes the tools of env/iface without creating
// a session.
func (e *Engine) Inspect(ctx context.Context, env, iface string) (_ *Inspection, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.Inspect", trace.WithAttributes(
		attribute.String("toolbench.environment", env),
		attribute.String("toolbench.interface", iface),
	))
	defer func() { endSpan(span, err) }()

	sess, reg, err := e.detached(ctx, env, iface)
	if err != nil {
		return nil, err
	}
	out := &Inspection{CatalogSummary: summarize(sess, reg)}
	if !sess.Static {
		if out.Source, err = synth.Assemble(sess.Tools); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Fold replays history over the baseline of env with the tools of iface and
// returns the resulting dataset. Arguments are normalized as a live call
// would have stored them. No session is created or modified; a failing
// entry is a *ReplayError.
func (e *Engine) Fold(ctx context.Context, env, iface string, history []session.Action) (_ dataset.Dataset, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.Fold", trace.WithAttributes(
		attribute.String("toolbench.environment", env),
		attribute.String("toolbench.interface", iface),
		attribute.Int("toolbench.history", len(history)),
	))
	defer func() { endSpan(span, err) }()

	_, reg, err := e.detached(ctx, env, iface)
	if err != nil {
		return nil, err
	}
	baseline, err := e.loader.Load(ctx, env)
	if err != nil {
		return nil, err
	}
	if err := Apply(baseline, normalized(history, reg), reg); err != nil {
		e.logger.Error("offline replay failed", "environment", env, "interface", iface, "error", err)
		return nil, err
	}
	return baseline, nil
}

// detached builds the registry of env/iface for a throwaway session.
func (e *Engine) detached(ctx context.Context, env, iface string) (*session.Session, *tool.Registry, error) {
	if err := security.ValidateIdentifier("environment", env); err != nil {
		return nil, nil, err
	}
	if err := security.ValidateIdentifier("interface", iface); err != nil {
		return nil, nil, err
	}
	if _, err := e.loader.Environment(ctx, env); err != nil {
		return nil, nil, err
	}
	sess := &session.Session{Environment: env, Interface: iface}
	reg, err := e.discover(ctx, sess)
	if err != nil {
		return nil, nil, err
	}
	return sess, reg, nil
}

func normalized(history []session.Action, reg *tool.Registry) []session.Action {
	out := make([]session.Action, len(history))
	for i, a := range history {
		out[i] = a
		if t, err := reg.Get(a.Tool); err == nil {
			out[i].Arguments = normalize.Normalize(a.Arguments, normalize.Paths(t.Info(), nil))
		}
	}
	return out
}
