package runner

// scheduler.go runs the pipeline periodically.
//
// gocron runs the job in singleton mode, so a slow run delays the next tick
// instead of overlapping it. Errors are logged and never stop the schedule.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler triggers runs every interval.
type Scheduler struct {
	runner     *Runner
	interval   time.Duration
	runOnStart bool
	sched      *gocron.Scheduler
	stopOnce   sync.Once
}

// NewScheduler creates a scheduler. Call Start to begin.
func NewScheduler(r *Runner, interval time.Duration, runOnStart bool) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{runner: r, interval: interval, runOnStart: runOnStart, sched: s}
}

// Start registers the job and starts the scheduler in the background. The
// job stops being scheduled when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	job := s.sched.Every(s.interval)
	if !s.runOnStart {
		job = job.WaitForSchedule()
	}
	if _, err := job.Do(s.tick, ctx); err != nil {
		return fmt.Errorf("schedule run: %w", err)
	}

	slog.Info("scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)
	s.sched.StartAsync()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running job to return. It is
// safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.sched.Stop()
		slog.Info("scheduler stopped")
	})
}

// NextRun returns the next scheduled run time.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.sched.NextRun()
	return next
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.runner.Run(ctx, TriggerSchedule)
	switch {
	case errors.Is(err, ErrRunInProgress):
		slog.Info("scheduled run skipped", "reason", err)
	case err != nil:
		slog.Error("scheduled run failed", "error", err)
	default:
		slog.Debug("scheduled run finished", "run_id", res.RunID)
	}
}
