// Package scheduler runs periodic jobs, such as re-scanning the documents
// folder, on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"courserag/internal/logger"
)

// Job is one scheduled run. Its error is logged; the schedule continues.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
}

func New() *Scheduler {
	log := logger.WithComponent("scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		)),
		logger: log,
		ctx:    context.Background(),
	}
}

// Add registers job under a standard five-field expression or a descriptor
// such as "@hourly" or "@every 15m".
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		log := s.logger.With("job", name)
		log.Info("job started")
		if err := job(s.ctx); err != nil {
			log.Error("job failed", "error", err, "elapsed", time.Since(start))
			return
		}
		log.Info("job finished", "elapsed", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("scheduling %s with %q: %w", name, spec, err)
	}
	return nil
}

// Run starts the schedule and blocks until ctx is cancelled and running
// jobs have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
