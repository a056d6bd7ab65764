package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// testPruner implements SessionPruner for job tests.
type testPruner struct {
	calls     atomic.Int32
	pruneFunc func(cutoff time.Time) (int, error)
}

func (p *testPruner) Prune(_ context.Context, cutoff time.Time) (int, error) {
	p.calls.Add(1)
	if p.pruneFunc != nil {
		return p.pruneFunc(cutoff)
	}
	return 0, nil
}

type testInvalidator struct {
	envs []string
}

func (i *testInvalidator) Invalidate(env string) { i.envs = append(i.envs, env) }

func TestSessionCleanupJob_Name(t *testing.T) {
	t.Parallel()
	j := &SessionCleanupJob{Logger: slog.Default()}
	if j.Name() != "session_cleanup" {
		t.Errorf("name = %q, want %q", j.Name(), "session_cleanup")
	}
}

func TestSessionCleanupJob_Schedule(t *testing.T) {
	t.Parallel()
	j := &SessionCleanupJob{Logger: slog.Default()}
	if j.Schedule() != "*/5 * * * *" {
		t.Errorf("schedule = %q, want %q", j.Schedule(), "*/5 * * * *")
	}
	j.ScheduleExpr = "@every 1m"
	if j.Schedule() != "@every 1m" {
		t.Errorf("schedule = %q, want override", j.Schedule())
	}
}

func TestSessionCleanupJob_Run(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	pruner := &testPruner{
		pruneFunc: func(cutoff time.Time) (int, error) {
			if want := now.Add(-30 * time.Minute); !cutoff.Equal(want) {
				t.Errorf("cutoff = %v, want %v", cutoff, want)
			}
			return 3, nil
		},
	}

	j := &SessionCleanupJob{
		Pruner:  pruner,
		MaxIdle: 30 * time.Minute,
		Logger:  slog.Default(),
		Now:     func() time.Time { return now },
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pruner.calls.Load() != 1 {
		t.Errorf("prune calls = %d, want 1", pruner.calls.Load())
	}
}

func TestSessionCleanupJob_PruneError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	j := &SessionCleanupJob{
		Pruner: &testPruner{pruneFunc: func(time.Time) (int, error) { return 0, boom }},
		Logger: slog.Default(),
	}
	if err := j.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestSessionCleanupJob_CancelledContext(t *testing.T) {
	t.Parallel()

	pruner := &testPruner{}
	j := &SessionCleanupJob{Pruner: pruner, Logger: slog.Default()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if pruner.calls.Load() != 0 {
		t.Error("pruner called with a cancelled context")
	}
}

func TestBaselineRefreshJob(t *testing.T) {
	t.Parallel()

	inv := &testInvalidator{}
	j := &BaselineRefreshJob{Invalidator: inv, Logger: slog.Default()}
	if j.Name() != "baseline_refresh" || j.Schedule() != "0 * * * *" {
		t.Errorf("name/schedule = %q/%q", j.Name(), j.Schedule())
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.envs) != 1 || inv.envs[0] != "" {
		t.Errorf("invalidated = %q, want every environment", inv.envs)
	}
}
