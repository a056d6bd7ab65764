package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrUnknownJob is returned by RunNow for a name that was never registered.
	ErrUnknownJob = errors.New("cron: unknown job")

	// ErrJobRunning is returned by RunNow when the job is already executing.
	ErrJobRunning = errors.New("cron: job already running")
)

// JobStatus reports the last execution of a job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Next      time.Time `json:"next,omitzero"`
}

type jobState struct {
	job     Job
	lock    sync.Mutex
	entry   cron.EntryID
	runs    int
	lastRun time.Time
	lastErr error
}

// Scheduler manages periodic job execution using cron expressions.
// Each job is protected by a per-job mutex to prevent parallel execution
// of the same job (uses TryLock, atomic, no race).
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []*jobState
	byName map[string]*jobState
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byName: make(map[string]*jobState),
		logger: logger,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}

	st := &jobState{job: j}
	s.byName[name] = st
	s.jobs = append(s.jobs, st)
	return nil
}

// Start initializes the cron scheduler and begins executing registered jobs.
// Returns an error if any job has an invalid schedule expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.cron = cron.New(cron.WithParser(parser))

	for _, st := range s.jobs {
		id, err := s.cron.AddFunc(st.job.Schedule(), func() {
			if errors.Is(s.run(ctx, st), ErrJobRunning) {
				s.logger.Warn("cron: job still running, skipping tick", "job", st.job.Name())
			}
		})
		if err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", st.job.Name(), err)
		}
		st.entry = id
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// run executes one tick of st unless it is already running.
func (s *Scheduler) run(ctx context.Context, st *jobState) error {
	// If the previous tick is still running, skip this one.
	if !st.lock.TryLock() {
		return ErrJobRunning
	}
	defer st.lock.Unlock()

	name := st.job.Name()
	s.logger.Debug("cron: job started", "job", name)
	err := st.job.Run(ctx)

	s.mu.Lock()
	st.runs++
	st.lastRun = time.Now()
	st.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
		return err
	}
	s.logger.Debug("cron: job completed", "job", name)
	return nil
}

// RunNow executes the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, st)
}

// Status returns the state of every registered job in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		js := JobStatus{
			Name:     st.job.Name(),
			Schedule: st.job.Schedule(),
			Runs:     st.runs,
			LastRun:  st.lastRun,
		}
		if st.lastErr != nil {
			js.LastError = st.lastErr.Error()
		}
		if s.cron != nil && st.entry != 0 {
			js.Next = s.cron.Entry(st.entry).Next
		}
		out = append(out, js)
	}
	return out
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	c := s.cron
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if c != nil {
		// Wait for running jobs to complete.
		<-c.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
