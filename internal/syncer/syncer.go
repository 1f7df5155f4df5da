// Package syncer orchestrates rollup runs end-to-end: it pulls one
// project/day batch out of the raw event store, aggregates it, writes the
// rollup tables, and tracks every attempt in the sync log.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"tidemark/internal/aggregation"
	"tidemark/internal/events"
	"tidemark/internal/projects"
	"tidemark/internal/rollups"
)

// Syncer coordinates rollup runs. Runs hold no shared mutable state beyond
// the destination store, so different (project, date) keys may run
// concurrently; two runs on the same key would race inside the writer's
// delete-then-insert window, so they are serialized on a per-key lock.
type Syncer struct {
	dbManager    cartridge.DBManager
	store        events.Store
	logger       *slog.Logger
	fetchTimeout time.Duration

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewSyncer creates a Syncer over the given stores.
func NewSyncer(dbManager cartridge.DBManager, store events.Store, logger *slog.Logger, fetchTimeout time.Duration) *Syncer {
	return &Syncer{
		dbManager:    dbManager,
		store:        store,
		logger:       logger,
		fetchTimeout: fetchTimeout,
		keyLocks:     make(map[string]*sync.Mutex),
	}
}

func (s *Syncer) lockKey(projectID uint, day time.Time) func() {
	key := fmt.Sprintf("%d:%s", projectID, day.Format("2006-01-02"))

	s.mu.Lock()
	lock, ok := s.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.keyLocks[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// SyncProjectData runs one project/day rollup end-to-end. Every attempt is
// recorded in the sync log before any external call and finalized exactly
// once. A day with zero events short-circuits to a successful no-op run:
// no delete is issued, so prior rollups for that day stay in place.
func (s *Syncer) SyncProjectData(ctx context.Context, projectID uint, date time.Time) error {
	day := rollups.Day(date)
	unlock := s.lockKey(projectID, day)
	defer unlock()

	syncLog, err := s.startLog(projectID, day)
	if err != nil {
		return fmt.Errorf("failed to record sync start: %w", err)
	}

	s.logger.Info("Starting sync run",
		slog.String("run_id", syncLog.RunID),
		slog.Uint64("project_id", uint64(projectID)),
		slog.Time("date", day))

	// The fetch is the only unbounded-latency external call; a timeout
	// surfaces as a failed run like any other fetch error.
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	batch, err := s.store.FetchForDay(fetchCtx, projectID, day)
	cancel()
	if err != nil {
		fetchErr := fmt.Errorf("failed to fetch events: %w", err)
		s.finishLog(syncLog, StatusFailed, 0, fetchErr.Error())
		return fetchErr
	}

	if len(batch) == 0 {
		// No traffic: succeed without touching existing rollups.
		s.finishLog(syncLog, StatusSuccess, 0, "")
		s.logger.Info("Sync run complete, no events",
			slog.String("run_id", syncLog.RunID),
			slog.Uint64("project_id", uint64(projectID)),
			slog.Time("date", day))
		return nil
	}

	result := aggregation.Aggregate(batch)

	if err := rollups.Write(s.dbManager, s.logger, projectID, day, result); err != nil {
		s.finishLog(syncLog, StatusFailed, 0, err.Error())
		return err
	}

	s.finishLog(syncLog, StatusSuccess, len(batch), "")
	s.logger.Info("Sync run complete",
		slog.String("run_id", syncLog.RunID),
		slog.Uint64("project_id", uint64(projectID)),
		slog.Time("date", day),
		slog.Int("records", len(batch)))
	return nil
}

// SyncAllProjects sweeps all active projects for one date, sequentially.
// A failing project is logged and skipped so its siblings still run.
func (s *Syncer) SyncAllProjects(ctx context.Context, date time.Time) error {
	day := rollups.Day(date)

	active, err := projects.ListActive(s.dbManager.GetConnection())
	if err != nil {
		return err
	}

	s.logger.Info("Starting sync sweep",
		slog.Time("date", day),
		slog.Int("projects", len(active)))

	failures := 0
	for _, project := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SyncProjectData(ctx, project.ID, day); err != nil {
			failures++
			s.logger.Error("Project sync failed, continuing sweep",
				slog.Uint64("project_id", uint64(project.ID)),
				slog.Time("date", day),
				slog.Any("error", err))
		}
	}

	s.logger.Info("Sync sweep complete",
		slog.Time("date", day),
		slog.Int("projects", len(active)),
		slog.Int("failures", failures))
	return nil
}

// SyncYesterday sweeps all active projects for the previous UTC day.
func (s *Syncer) SyncYesterday(ctx context.Context) error {
	return s.SyncAllProjects(ctx, time.Now().UTC().AddDate(0, 0, -1))
}

// SyncToday sweeps all active projects for the current UTC day.
func (s *Syncer) SyncToday(ctx context.Context) error {
	return s.SyncAllProjects(ctx, time.Now().UTC())
}

// SyncDateRange sweeps all active projects once per calendar day from start
// through end, inclusive.
func (s *Syncer) SyncDateRange(ctx context.Context, start, end time.Time) error {
	first := rollups.Day(start)
	last := rollups.Day(end)
	if last.Before(first) {
		return fmt.Errorf("invalid date range: %s is after %s",
			first.Format("2006-01-02"), last.Format("2006-01-02"))
	}

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if err := s.SyncAllProjects(ctx, day); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) startLog(projectID uint, day time.Time) (*SyncLog, error) {
	syncLog := &SyncLog{
		RunID:     uuid.NewString(),
		ProjectID: projectID,
		Date:      day,
		RunType:   RunTypeDaily,
		Status:    StatusInProgress,
		StartedAt: time.Now().UTC(),
	}

	err := sqlite.PerformWrite(s.logger, s.dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Create(syncLog).Error
	})
	if err != nil {
		return nil, err
	}
	return syncLog, nil
}

// finishLog finalizes a sync log row. Failing to persist the outcome must
// not mask the run's own result, so errors here are only logged.
func (s *Syncer) finishLog(syncLog *SyncLog, status string, records int, errorMessage string) {
	now := time.Now().UTC()
	syncLog.Status = status
	syncLog.RecordsProcessed = records
	syncLog.ErrorMessage = errorMessage
	syncLog.CompletedAt = &now

	err := sqlite.PerformWrite(s.logger, s.dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Model(&SyncLog{}).Where("id = ?", syncLog.ID).Updates(map[string]any{
			"status":            syncLog.Status,
			"records_processed": syncLog.RecordsProcessed,
			"error_message":     syncLog.ErrorMessage,
			"completed_at":      syncLog.CompletedAt,
		}).Error
	})
	if err != nil {
		s.logger.Error("Failed to finalize sync log",
			slog.String("run_id", syncLog.RunID),
			slog.Any("error", err))
	}
}
