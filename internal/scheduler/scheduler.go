// Package scheduler runs the sync job once at startup and then on a cron
// schedule until shutdown.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Defaults match an hourly sync on the :00 boundary.
const (
	DefaultSpec         = "0 * * * *"
	DefaultPollInterval = time.Minute
)

// Job is one scheduled unit of work. It should return promptly once ctx is
// done, finishing any item already in progress.
type Job func(ctx context.Context)

// Config controls the schedule.
type Config struct {
	Spec         string
	PollInterval time.Duration
	Location     *time.Location
}

// Scheduler runs a Job immediately and then on a cron schedule. Overlapping
// runs are skipped.
type Scheduler struct {
	cfg      Config
	schedule cron.Schedule
	job      Job
	logger   *zap.Logger
}

// New validates cfg and builds a Scheduler.
func New(cfg Config, job Job, logger *zap.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("scheduler: job is required")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule, err := cron.ParseStandard(cfg.Spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}
	return &Scheduler{
		cfg:      cfg,
		schedule: schedule,
		job:      job,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is done. On shutdown it stops scheduling, waits for a
// running job to finish and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("running initial sync")
	s.runJob(ctx, "startup")
	if ctx.Err() != nil {
		s.logger.Info("scheduler stopped before first scheduled run")
		return nil
	}

	cronLogger := zapCronLogger{logger: s.logger.Sugar()}
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	entryID := c.Schedule(s.schedule, cron.FuncJob(func() {
		s.runJob(ctx, "schedule")
	}))
	c.Start()
	s.logger.Info("scheduler started",
		zap.String("spec", s.cfg.Spec),
		zap.Time("next_run", c.Entry(entryID).Next),
	)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown requested, waiting for running sync to finish")
			<-c.Stop().Done()
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			next := c.Entry(entryID).Next
			s.logger.Debug("waiting for next scheduled sync",
				zap.Time("next_run", next),
				zap.Duration("in", time.Until(next).Round(time.Second)),
			)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, trigger string) {
	start := time.Now()
	s.logger.Info("sync triggered", zap.String("trigger", trigger))
	s.job(ctx)
	s.logger.Info("sync completed",
		zap.String("trigger", trigger),
		zap.Duration("duration", time.Since(start)),
	)
}

// zapCronLogger routes cron's internal logging through zap.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
