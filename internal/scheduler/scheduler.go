// Package scheduler repeats synchronization runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/johnswift/hivesync/internal/syncer"
)

// RunFunc performs one synchronization.
type RunFunc func(ctx context.Context) (*syncer.Summary, error)

// Status describes the scheduler's history.
type Status struct {
	Runs        int             `json:"runs"`
	Failures    int             `json:"failures"`
	Skipped     int             `json:"skipped"`
	LastStart   time.Time       `json:"last_start,omitzero"`
	LastEnd     time.Time       `json:"last_end,omitzero"`
	LastError   string          `json:"last_error,omitempty"`
	LastSummary *syncer.Summary `json:"last_summary,omitempty"`
}

// Scheduler runs a RunFunc on a cron schedule. Runs never overlap; a tick that
// arrives while a run is in progress is skipped. A failed run is logged and
// does not stop the schedule.
type Scheduler struct {
	run    RunFunc
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	busy    bool
	cron    *cron.Cron
	done    chan struct{}
	status  Status
	initial sync.WaitGroup
}

// New creates a Scheduler.
func New(run RunFunc, logger *zap.Logger) *Scheduler {
	return &Scheduler{run: run, logger: logger}
}

// Start runs once immediately and then on every tick of spec. spec uses the
// six-field cron format with seconds, or a descriptor such as "@every 1h".
// Runs stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Scheduler already running")
		return nil
	}

	cl := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.cron = c
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("Scheduler started", zap.String("schedule", spec))
	c.Start()

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.RunOnce(ctx)
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a run in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, done, first := s.cron, s.done, s.running
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return
	}
	if first {
		<-c.Stop().Done()
		s.initial.Wait()
		close(done)
		s.logger.Info("Scheduler stopped")
	}
	<-done
}

// RunOnce performs a run unless one is already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	if s.busy {
		s.status.Skipped++
		s.mu.Unlock()
		s.logger.Info("Previous run still in progress, skipping")
		return
	}
	s.busy = true
	s.status.LastStart = time.Now().UTC()
	s.mu.Unlock()

	summary, err := s.run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.status.Runs++
	s.status.LastEnd = time.Now().UTC()
	s.status.LastSummary = summary
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
		s.logger.Error("Scheduled run failed", zap.Error(err))
		return
	}
	s.status.LastError = ""
}

// Status returns a snapshot of the scheduler's history.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
