// Package jobs runs the scheduled background work: the nightly rollup of
// yesterday's events for all active projects.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/robfig/cron/v3"

	"tidemark/internal/syncer"
)

// A run covers every active project sequentially, so the bound is generous.
const dailyRollupTimeout = 30 * time.Minute

// Scheduler is responsible for running background jobs.
type Scheduler struct {
	syncer   *syncer.Syncer
	logger   *slog.Logger
	cron     *cron.Cron
	cronSpec string

	isRunning bool

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool
}

// NewScheduler creates a scheduler that rolls up the previous day on the
// given cron spec.
func NewScheduler(s *syncer.Syncer, logger *slog.Logger, cronSpec string) *Scheduler {
	return &Scheduler{
		syncer:   s,
		logger:   logger,
		cron:     cron.New(),
		cronSpec: cronSpec,
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start registers and starts the background jobs.
func (s *Scheduler) Start() error {
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	_, err := s.cron.AddFunc(s.cronSpec, func() {
		s.executeJobSafely("daily_rollup", s.runDailyRollup)
	})
	if err != nil {
		return fmt.Errorf("invalid sync cron spec %q: %w", s.cronSpec, err)
	}

	s.cron.Start()
	s.isRunning = true

	s.logger.Info("Background jobs started", slog.String("cron", s.cronSpec))
	return nil
}

func (s *Scheduler) runDailyRollup() error {
	ctx, cancel := context.WithTimeout(context.Background(), dailyRollupTimeout)
	defer cancel()
	return s.syncer.SyncYesterday(ctx)
}

// Stop halts all background jobs and waits for a running job to return.
func (s *Scheduler) Stop() {
	if !s.isRunning {
		return
	}

	s.logger.Info("Stopping background jobs...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RunDailyRollupNow triggers the nightly rollup outside its schedule.
func (s *Scheduler) RunDailyRollupNow() error {
	return s.runDailyRollup()
}
