package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPruner removes sessions idle since before a cutoff.
type SessionPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// BaselineInvalidator drops cached baselines. An empty environment means all.
type BaselineInvalidator interface {
	Invalidate(env string)
}

// SessionCleanupJob removes sessions that have been idle longer than MaxIdle.
type SessionCleanupJob struct {
	Pruner       SessionPruner
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"

	// Now defaults to time.Now.
	Now func() time.Time
}

// Compile-time interface check.
var _ Job = (*SessionCleanupJob)(nil)

// Name implements Job.
func (j *SessionCleanupJob) Name() string {
	return "session_cleanup"
}

// Schedule implements Job.
func (j *SessionCleanupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes sessions idle longer than MaxIdle.
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: session cleanup cancelled: %w", ctx.Err())
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	pruned, err := j.Pruner.Prune(ctx, now().Add(-j.MaxIdle))
	if err != nil {
		return fmt.Errorf("cron: pruning sessions: %w", err)
	}
	if pruned > 0 {
		j.Logger.Info("cron: pruned idle sessions", "count", pruned, "max_idle", j.MaxIdle)
	}
	return nil
}

// BaselineRefreshJob drops every cached baseline so that datasets on
// storage the filesystem watcher cannot observe are re-read.
type BaselineRefreshJob struct {
	Invalidator  BaselineInvalidator
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

// Compile-time interface check.
var _ Job = (*BaselineRefreshJob)(nil)

// Name implements Job.
func (j *BaselineRefreshJob) Name() string {
	return "baseline_refresh"
}

// Schedule implements Job.
func (j *BaselineRefreshJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run invalidates every cached baseline.
func (j *BaselineRefreshJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: baseline refresh cancelled: %w", ctx.Err())
	}
	j.Invalidator.Invalidate("")
	j.Logger.Debug("cron: baselines invalidated")
	return nil
}
