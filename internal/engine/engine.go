// Package engine executes tool calls against replayed environment state.
//
// Each session owns a synthesized tool unit and an append-only action log.
// Every operation reloads the baseline dataset, re-applies the committed log
// and only then runs the requested tool. A call is committed to the log only
// when the tool returns without error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/toolbench/internal/catalog"
	"github.com/flemzord/toolbench/internal/dataset"
	"github.com/flemzord/toolbench/internal/jsonx"
	"github.com/flemzord/toolbench/internal/normalize"
	"github.com/flemzord/toolbench/internal/security"
	"github.com/flemzord/toolbench/internal/session"
	"github.com/flemzord/toolbench/internal/synth"
	"github.com/flemzord/toolbench/internal/tool"
)

const tracerName = "github.com/flemzord/toolbench/internal/engine"

// Config wires an Engine to its collaborators. Only Loader is required.
type Config struct {
	Loader  *dataset.Loader
	Builder *catalog.Builder
	Store   session.Store
	Logger  *slog.Logger
	Audit   *security.AuditLogger

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	// Registerer receives the engine metrics. Defaults to a private registry.
	Registerer prometheus.Registerer

	// UnitCacheSize bounds the number of synthesized units kept in memory.
	UnitCacheSize int

	NewID func() string
	Now   func() time.Time
}

// Call is one requested tool invocation.
type Call struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`

	// FloatPaths lists argument paths the caller believes hold floating
	// point values. They are used only when the tool declares no parameter
	// types.
	FloatPaths []string `json:"float_paths,omitempty"`
}

// Result is the outcome of a committed invocation.
type Result struct {
	Output any `json:"output"`

	// FloatFields names the top-level fields of Output holding floating
	// point values, for the caller's next FloatPaths.
	FloatFields []string `json:"float_fields"`
	HistoryLen  int      `json:"history_len"`
}

// CatalogSummary describes the tools of a session.
type CatalogSummary struct {
	SessionID   string               `json:"session_id"`
	Environment string               `json:"environment"`
	Interface   string               `json:"interface"`
	Static      bool                 `json:"static,omitempty"`
	Tools       []tool.Info          `json:"tools"`
	Diagnostics []catalog.Diagnostic `json:"diagnostics,omitempty"`
}

// Engine runs Select and Invoke for any number of sessions. Operations on
// one session are serialized; distinct sessions share nothing mutable.
type Engine struct {
	loader  *dataset.Loader
	builder *catalog.Builder
	store   session.Store
	logger  *slog.Logger
	audit   *security.AuditLogger
	tracer  trace.Tracer
	metrics *metrics
	newID   func() string
	now     func() time.Time

	locks  *sessionLocks
	units  *unitCache
	broker *broker
	closed atomic.Bool
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Loader == nil {
		return nil, errors.New("engine: a dataset loader is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	builder := cfg.Builder
	if builder == nil {
		builder = catalog.NewBuilder(cfg.Loader.FS(), logger)
	}
	store := cfg.Store
	if store == nil {
		store = session.NewMemoryStore()
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		loader:  cfg.Loader,
		builder: builder,
		store:   store,
		logger:  logger.With("component", "engine"),
		audit:   cfg.Audit,
		tracer:  tp.Tracer(tracerName),
		metrics: newMetrics(reg),
		newID:   newID,
		now:     now,
		locks:   newSessionLocks(),
		units:   newUnitCache(cfg.UnitCacheSize),
		broker:  newBroker(),
	}, nil
}

// Loader returns the dataset loader.
func (e *Engine) Loader() *dataset.Loader { return e.loader }

// Store returns the session store.
func (e *Engine) Store() session.Store { return e.store }

// Select discovers the tools of env/iface, synthesizes them and (re)starts
// the session with an empty history. An empty sessionID creates a new
// session. When discovery or synthesis fails any previous state of the
// session is discarded.
func (e *Engine) Select(ctx context.Context, sessionID, env, iface string) (_ *CatalogSummary, err error) {
	defer e.observe("select", e.now())
	ctx, span := e.tracer.Start(ctx, "engine.Select", trace.WithAttributes(
		attribute.String("toolbench.environment", env),
		attribute.String("toolbench.interface", iface),
	))
	defer func() { endSpan(span, err) }()

	if e.closed.Load() {
		e.metrics.selects.WithLabelValues(resultError).Inc()
		return nil, ErrClosed
	}
	if err := security.ValidateIdentifier("environment", env); err != nil {
		e.metrics.selects.WithLabelValues(resultError).Inc()
		return nil, err
	}
	if err := security.ValidateIdentifier("interface", iface); err != nil {
		e.metrics.selects.WithLabelValues(resultError).Inc()
		return nil, err
	}
	if sessionID == "" {
		sessionID = e.newID()
	}
	span.SetAttributes(attribute.String("toolbench.session", sessionID))

	unlock := e.locks.lock(sessionID)
	defer unlock()

	if _, err := e.loader.Environment(ctx, env); err != nil {
		e.metrics.selects.WithLabelValues(resultError).Inc()
		return nil, err
	}

	sess := &session.Session{
		ID:          sessionID,
		Environment: env,
		Interface:   iface,
		History:     []session.Action{},
	}
	reg, err := e.discover(ctx, sess)
	if err != nil {
		label := resultError
		var serr *synth.SynthesisError
		if errors.As(err, &serr) {
			label = resultSynthesis
		}
		e.metrics.selects.WithLabelValues(label).Inc()
		e.discard(ctx, sessionID)
		e.logger.Warn("select failed", "session", sessionID, "environment", env, "interface", iface, "error", err)
		return nil, err
	}

	if err := e.store.Put(ctx, sess); err != nil {
		e.metrics.selects.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("storing session %s: %w", sessionID, err)
	}
	e.units.put(sessionID, reg)
	e.metrics.selects.WithLabelValues(resultOK).Inc()

	e.audit.Log(security.AuditEvent{
		Type:        security.EventSelect,
		SessionID:   sessionID,
		Environment: env,
		Interface:   iface,
		Detail:      fmt.Sprintf("%d tools, %d diagnostics", reg.Len(), len(sess.Diagnostics)),
	})
	e.logger.Info("session selected",
		"session", sessionID,
		"environment", env,
		"interface", iface,
		"tools", reg.Len(),
		"static", sess.Static,
	)
	return summarize(sess, reg), nil
}

// discover fills the tool inputs of sess and returns its registry.
// A compiled-in tool set takes precedence over source discovery.
func (e *Engine) discover(ctx context.Context, sess *session.Session) (*tool.Registry, error) {
	if _, ok := tool.LookupSet(sess.Environment, sess.Interface); ok {
		sess.Static = true
		e.metrics.unitBuilds.Inc()
		return buildRegistry(sess)
	}

	cat, err := e.builder.Build(ctx, e.loader.ToolsURL(sess.Environment, sess.Interface))
	if err != nil {
		return nil, err
	}
	if len(cat.Descriptors) == 0 {
		return nil, fmt.Errorf("%w in %s/%s", catalog.ErrEmptyCatalog, sess.Environment, sess.Interface)
	}
	sess.Tools = cat.Descriptors
	sess.Diagnostics = cat.Diagnostics()

	_, span := e.tracer.Start(ctx, "engine.Synthesize",
		trace.WithAttributes(attribute.Int("toolbench.tools", len(cat.Descriptors))))
	e.metrics.unitBuilds.Inc()
	unit, err := synth.Synthesize(cat.Descriptors)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}
	return unit.Registry, nil
}

func (e *Engine) discard(ctx context.Context, sessionID string) {
	e.units.drop(sessionID)
	if err := e.store.Delete(ctx, sessionID); err != nil {
		e.logger.Error("discarding session", "session", sessionID, "error", err)
	}
}

// Invoke runs one tool call: load the baseline, replay the history,
// normalize the arguments, invoke, and commit on success.
func (e *Engine) Invoke(ctx context.Context, sessionID string, c Call) (_ *Result, err error) {
	defer e.observe("invoke", e.now())
	ctx, span := e.tracer.Start(ctx, "engine.Invoke", trace.WithAttributes(
		attribute.String("toolbench.session", sessionID),
		attribute.String("toolbench.tool", c.Tool),
	))
	defer func() { endSpan(span, err) }()

	if e.closed.Load() {
		e.metrics.invocations.WithLabelValues(resultError).Inc()
		return nil, ErrClosed
	}
	if sessionID == "" {
		e.metrics.invocations.WithLabelValues(resultError).Inc()
		return nil, ErrNoSession
	}

	unlock := e.locks.lock(sessionID)
	defer unlock()

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		e.metrics.invocations.WithLabelValues(resultError).Inc()
		return nil, err
	}
	reg, err := e.registry(ctx, sess)
	if err != nil {
		e.metrics.invocations.WithLabelValues(resultError).Inc()
		return nil, err
	}
	t, err := reg.Get(c.Tool)
	if err != nil {
		e.metrics.invocations.WithLabelValues(resultNotFound).Inc()
		return nil, err
	}

	data, err := e.current(ctx, sess, reg)
	if err != nil {
		label := resultError
		var rerr *ReplayError
		if errors.As(err, &rerr) {
			label = resultReplayDrift
		}
		e.metrics.invocations.WithLabelValues(label).Inc()
		return nil, err
	}

	args := normalize.Normalize(c.Arguments, normalize.Paths(t.Info(), c.FloatPaths))
	recorded := jsonx.CloneObject(args)

	out, err := call(t, data, args)
	if err != nil {
		var perr *panicError
		ierr := &InvocationError{Tool: c.Tool, Err: err, Panicked: errors.As(err, &perr)}
		e.metrics.invocations.WithLabelValues(resultRejected).Inc()
		e.audit.Log(security.AuditEvent{
			Type:        security.EventInvokeFailed,
			SessionID:   sessionID,
			Environment: sess.Environment,
			Interface:   sess.Interface,
			ToolName:    c.Tool,
			Arguments:   recorded,
			Detail:      err.Error(),
		})
		e.logger.Debug("invocation rejected", "session", sessionID, "tool", c.Tool, "error", err)
		return nil, ierr
	}

	seq := len(sess.History)
	action := session.Action{Tool: c.Tool, Arguments: recorded, At: e.now().UTC()}
	if err := e.store.Append(ctx, sessionID, seq, action); err != nil {
		e.metrics.invocations.WithLabelValues(resultError).Inc()
		return nil, fmt.Errorf("committing %s: %w", c.Tool, err)
	}

	res := &Result{
		Output:      out,
		FloatFields: normalize.FloatFields(out),
		HistoryLen:  seq + 1,
	}
	e.metrics.invocations.WithLabelValues(resultCommitted).Inc()
	e.audit.Log(security.AuditEvent{
		Type:        security.EventInvoke,
		SessionID:   sessionID,
		Environment: sess.Environment,
		Interface:   sess.Interface,
		ToolName:    c.Tool,
		Arguments:   recorded,
	})
	if dropped := e.broker.publish(CommitEvent{
		SessionID:   sessionID,
		Seq:         seq,
		Tool:        c.Tool,
		Arguments:   recorded,
		Output:      out,
		FloatFields: res.FloatFields,
		At:          action.At,
	}); dropped > 0 {
		e.metrics.dropped.Add(float64(dropped))
		e.logger.Warn("commit event dropped", "session", sessionID, "subscribers", dropped)
	}
	e.logger.Debug("invocation committed", "session", sessionID, "tool", c.Tool, "seq", seq)
	return res, nil
}

// current loads a private copy of the baseline and replays the session
// history over it.
func (e *Engine) current(ctx context.Context, sess *session.Session, reg *tool.Registry) (_ dataset.Dataset, err error) {
	ctx, span := e.tracer.Start(ctx, "engine.Replay", trace.WithAttributes(
		attribute.Int("toolbench.history", len(sess.History)),
	))
	defer func() { endSpan(span, err) }()

	data, err := e.loader.Load(ctx, sess.Environment)
	if err != nil {
		return nil, err
	}
	e.metrics.replayLength.Observe(float64(len(sess.History)))

	if err := Apply(data, sess.History, reg); err != nil {
		e.audit.Log(security.AuditEvent{
			Type:        security.EventReplayDrift,
			SessionID:   sess.ID,
			Environment: sess.Environment,
			Interface:   sess.Interface,
			Detail:      err.Error(),
		})
		e.logger.Error("replay drift", "session", sess.ID, "environment", sess.Environment, "error", err)
		return nil, err
	}
	return data, nil
}

// registry returns the cached unit of sess, rebuilding it when needed.
func (e *Engine) registry(ctx context.Context, sess *session.Session) (*tool.Registry, error) {
	if reg, ok := e.units.get(sess.ID); ok {
		return reg, nil
	}
	_, span := e.tracer.Start(ctx, "engine.Synthesize", trace.WithAttributes(
		attribute.Int("toolbench.tools", len(sess.Tools)),
		attribute.Bool("toolbench.static", sess.Static),
	))
	e.metrics.unitBuilds.Inc()
	reg, err := buildRegistry(sess)
	endSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("rebuilding tools of session %s: %w", sess.ID, err)
	}
	e.units.put(sess.ID, reg)
	return reg, nil
}

// State returns the dataset as the committed history left it.
func (e *Engine) State(ctx context.Context, sessionID string) (_ dataset.Dataset, err error) {
	defer e.observe("state", e.now())
	ctx, span := e.tracer.Start(ctx, "engine.State",
		trace.WithAttributes(attribute.String("toolbench.session", sessionID)))
	defer func() { endSpan(span, err) }()

	unlock := e.locks.lock(sessionID)
	defer unlock()

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	reg, err := e.registry(ctx, sess)
	if err != nil {
		return nil, err
	}
	return e.current(ctx, sess, reg)
}

// History returns the committed actions of a session.
func (e *Engine) History(ctx context.Context, sessionID string) ([]session.Action, error) {
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.History, nil
}

// Tools returns the catalog of a session.
func (e *Engine) Tools(ctx context.Context, sessionID string) (*CatalogSummary, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	reg, err := e.registry(ctx, sess)
	if err != nil {
		return nil, err
	}
	return summarize(sess, reg), nil
}

// Source returns the assembled unit text of a discovered session.
func (e *Engine) Source(ctx context.Context, sessionID string) (string, error) {
	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.Static {
		return "", fmt.Errorf("session %s uses compiled-in tools", sessionID)
	}
	return synth.Assemble(sess.Tools)
}

// Reset empties the history of a session and keeps its catalog.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	sess, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	dropped := len(sess.History)
	sess.History = []session.Action{}
	if err := e.store.Put(ctx, sess); err != nil {
		return fmt.Errorf("resetting session %s: %w", sessionID, err)
	}
	e.audit.Log(security.AuditEvent{
		Type:        security.EventReset,
		SessionID:   sessionID,
		Environment: sess.Environment,
		Interface:   sess.Interface,
		Detail:      fmt.Sprintf("%d actions dropped", dropped),
	})
	e.logger.Info("session reset", "session", sessionID, "dropped", dropped)
	return nil
}

// Delete removes a session.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	e.units.drop(sessionID)
	if err := e.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	e.audit.Log(security.AuditEvent{Type: security.EventSessionDelete, SessionID: sessionID})
	return nil
}

// Sessions lists every session, most recently used first.
func (e *Engine) Sessions(ctx context.Context) ([]session.Summary, error) {
	return e.store.List(ctx)
}

// Prune removes sessions idle since before cutoff and drops their units.
func (e *Engine) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := e.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	live, err := e.store.List(ctx)
	if err != nil {
		return n, err
	}
	keep := make(map[string]bool, len(live))
	for _, s := range live {
		keep[s.ID] = true
	}
	e.units.retain(keep)
	return n, nil
}

// Invalidate drops the cached baseline of env, or of every environment
// when env is empty.
func (e *Engine) Invalidate(env string) {
	e.loader.Invalidate(env)
	e.logger.Debug("baseline invalidated", "environment", env)
}

// Subscribe returns a channel of commit events for sessionID, or for every
// session when sessionID is empty, and a function that cancels the
// subscription. Slow subscribers miss events rather than block commits.
func (e *Engine) Subscribe(sessionID string) (<-chan CommitEvent, func()) {
	return e.broker.subscribe(sessionID)
}

// Close terminates every subscription. Select and Invoke fail with
// ErrClosed afterwards; read-only operations keep working.
func (e *Engine) Close() {
	e.closed.Store(true)
	e.broker.close()
}

func (e *Engine) observe(op string, start time.Time) {
	e.metrics.duration.WithLabelValues(op).Observe(e.now().Sub(start).Seconds())
}

func summarize(sess *session.Session, reg *tool.Registry) *CatalogSummary {
	return &CatalogSummary{
		SessionID:   sess.ID,
		Environment: sess.Environment,
		Interface:   sess.Interface,
		Static:      sess.Static,
		Tools:       reg.Infos(),
		Diagnostics: sess.Diagnostics,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
