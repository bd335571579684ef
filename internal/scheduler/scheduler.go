// Package scheduler runs the daily crawl and backup jobs at fixed local
// times, with manual triggers for on-demand runs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/autoria-tools/crawler/internal/crawler"
)

// TimeOfDay is a wall-clock deadline within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "15:04" into a TimeOfDay.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", value, err)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// Next returns the first instant at or after now that lands on the
// time of day, in now's location.
func (t TimeOfDay) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Job is a unit of scheduled work. Failures are logged, never fatal to the
// scheduler loop.
type Job func(ctx context.Context) error

// Scheduler owns the daily loop. Jobs run one at a time on the loop
// goroutine; a trigger arriving mid-run is queued, not dropped.
type Scheduler struct {
	clock     crawler.Clock
	logger    *zap.Logger
	crawlAt   TimeOfDay
	backupAt  TimeOfDay
	crawl     Job
	backup    Job
	crawlNow  chan struct{}
	backupNow chan struct{}
}

// New constructs a Scheduler.
func New(clock crawler.Clock, logger *zap.Logger, crawlAt, backupAt TimeOfDay, crawl, backup Job) *Scheduler {
	return &Scheduler{
		clock:     clock,
		logger:    logger,
		crawlAt:   crawlAt,
		backupAt:  backupAt,
		crawl:     crawl,
		backup:    backup,
		crawlNow:  make(chan struct{}, 1),
		backupNow: make(chan struct{}, 1),
	}
}

// TriggerCrawl queues an immediate crawl. At most one trigger is held; a
// second request while one is pending is a no-op.
func (s *Scheduler) TriggerCrawl() {
	select {
	case s.crawlNow <- struct{}{}:
	default:
	}
}

// TriggerBackup queues an immediate backup.
func (s *Scheduler) TriggerBackup() {
	select {
	case s.backupNow <- struct{}{}:
	default:
	}
}

// Run blocks until the context is canceled, firing each job at its daily
// time and on manual triggers.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		zap.String("crawl_at", s.crawlAt.String()),
		zap.String("backup_at", s.backupAt.String()),
	)

	for {
		now := s.clock.Now()
		nextCrawl := s.crawlAt.Next(now)
		nextBackup := s.backupAt.Next(now)

		wake := nextCrawl
		if nextBackup.Before(wake) {
			wake = nextBackup
		}
		timer := time.NewTimer(wake.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopping")
			return ctx.Err()

		case <-timer.C:
			// Both jobs can share a deadline minute; run crawl first so the
			// backup sees the fresh rows.
			if !wake.Before(nextCrawl) {
				s.runJob(ctx, "crawl", s.crawl)
			}
			if !wake.Before(nextBackup) {
				s.runJob(ctx, "backup", s.backup)
			}

		case <-s.crawlNow:
			timer.Stop()
			s.runJob(ctx, "crawl", s.crawl)

		case <-s.backupNow:
			timer.Stop()
			s.runJob(ctx, "backup", s.backup)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, name string, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := s.clock.Now()
	s.logger.Info("job starting", zap.String("job", name))
	if err := job(ctx); err != nil {
		s.logger.Error("job failed",
			zap.String("job", name),
			zap.Duration("elapsed", s.clock.Now().Sub(start)),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("job finished",
		zap.String("job", name),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
}
