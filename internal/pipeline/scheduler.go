package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc performs one ingestion run for a business date.
type RunFunc func(ctx context.Context, period time.Time) error

// Scheduler triggers a RunFunc on a cron schedule. The business date of each
// run is the trigger time's calendar date in the scheduler's location.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	loc      *time.Location
	run      RunFunc
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler parses expr and creates a Scheduler. A nil loc means UTC.
func NewScheduler(expr string, loc *time.Location, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse cron %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		expr:     expr,
		schedule: schedule,
		loc:      loc,
		run:      run,
		logger:   logger.With(slog.String("component", "scheduler")),
		now:      time.Now,
	}, nil
}

// Run blocks, triggering runs until ctx is cancelled. A failed run is logged
// and does not stop the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", slog.String("cron", s.expr), slog.String("location", s.loc.String()))

	for {
		next := s.schedule.Next(s.now().In(s.loc))
		if next.IsZero() {
			return fmt.Errorf("pipeline: no trigger time for %q", s.expr)
		}

		wait := time.Until(next)
		s.logger.Info("waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			period := BusinessDate(next, s.loc)
			if err := s.run(ctx, period); err != nil {
				s.logger.Error("scheduled run failed",
					slog.String("period", period.Format(time.DateOnly)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// BusinessDate returns t's calendar date in loc, as a UTC midnight.
func BusinessDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
