// Package scheduler runs ingest and queue processing on an interval inside a
// daily working-hours window.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/amishk599/jobmatch/internal/worker"
)

// Ingestor pulls new postings into the queue.
type Ingestor interface {
	Ingest(ctx context.Context) (int, error)
}

// QueueRunner drains the queue once.
type QueueRunner interface {
	ProcessQueue(ctx context.Context) (worker.RunStats, error)
}

// Window is a daily range of local hours [StartHour, EndHour). Equal bounds
// mean always open; StartHour > EndHour wraps past midnight.
type Window struct {
	StartHour int
	EndHour   int
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	h := t.Hour()
	switch {
	case w.StartHour == w.EndHour:
		return true
	case w.StartHour < w.EndHour:
		return h >= w.StartHour && h < w.EndHour
	default:
		return h >= w.StartHour || h < w.EndHour
	}
}

// Scheduler owns the main loop: each tick ingests, then drains the queue.
type Scheduler struct {
	ingest   Ingestor
	process  QueueRunner
	interval time.Duration
	window   Window
	logger   *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler creates a scheduler. A nil ingest runs processing only.
func NewScheduler(ingest Ingestor, process QueueRunner, interval time.Duration, window Window, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ingest:   ingest,
		process:  process,
		interval: interval,
		window:   window,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}
}

// Run starts the loop. It runs one immediate cycle, then ticks on the
// configured interval. It returns nil when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"interval", s.interval.String(),
		"start_hour", s.window.StartHour,
		"end_hour", s.window.EndHour,
	)

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-s.after(s.interval):
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if !s.window.Contains(now) {
		s.logger.Info("outside working hours, skipping run", "time", now.Format(time.Kitchen))
		return
	}
	s.RunOnce(ctx)
}

// RunOnce ingests and then drains the queue, logging failures.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.ingest != nil {
		if _, err := s.ingest.Ingest(ctx); err != nil {
			s.logger.Error("ingest failed", "error", err)
		}
	}
	if ctx.Err() != nil {
		return
	}

	stats, err := s.process.ProcessQueue(ctx)
	switch {
	case err != nil:
		s.logger.Error("queue run failed", "error", err)
	case stats.Skipped:
		s.logger.Info("queue run skipped, another run is active")
	default:
		s.logger.Info("queue run completed", "done", stats.Done, "failed", stats.Failed)
	}
}
