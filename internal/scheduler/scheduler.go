// Package scheduler triggers the ingest and extract tasks on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nsyy/eye-pacs/internal/common"
)

// Submitter accepts a named task for background execution.
type Submitter interface {
	Enqueue(name string) error
}

type Entry struct {
	Task  string
	Every time.Duration
}

type Scheduler struct {
	cron   *cron.Cron
	sub    Submitter
	logger *slog.Logger
}

func New(sub Submitter, logger *slog.Logger) *Scheduler {
	cl := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sub:    sub,
		logger: logger,
	}
}

// Add registers task to be enqueued every interval. A run that finds the task
// still busy is skipped.
func (s *Scheduler) Add(e Entry) error {
	if e.Every <= 0 {
		return common.NewAppError("CONFIG_ERROR", fmt.Sprintf("interval for %s must be positive", e.Task), common.ErrInvalidInput)
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", e.Every), func() {
		err := s.sub.Enqueue(e.Task)
		switch {
		case err == nil:
			s.logger.Debug("scheduled task enqueued", "task", e.Task)
		case errors.Is(err, common.ErrBusy):
			s.logger.Debug("scheduled task still running, skipped", "task", e.Task)
		default:
			s.logger.Error("failed to enqueue scheduled task", "task", e.Task, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", e.Task, err)
	}
	s.logger.Info("task scheduled", "task", e.Task, "every", e.Every.String())
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for in-progress triggers, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop interrupted by context")
	}
}

// Entries lists the registered schedule, for diagnostics.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }
