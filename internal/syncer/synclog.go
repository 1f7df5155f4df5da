package syncer

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sync run lifecycle states. A log row is created in_progress and finalized
// exactly once into a terminal state; this subsystem never deletes one.
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// RunTypeDaily is the only run type currently produced.
const RunTypeDaily = "daily"

// SyncLog records one sync attempt for a (project, date) pair.
type SyncLog struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	RunID            string    `gorm:"uniqueIndex;size:36;not null"`
	ProjectID        uint      `gorm:"index:idx_synclog_project_date;not null"`
	Date             time.Time `gorm:"index:idx_synclog_project_date;type:date;not null"`
	RunType          string    `gorm:"not null;default:'daily'"`
	Status           string    `gorm:"not null"`
	RecordsProcessed int       `gorm:"not null;default:0"`
	ErrorMessage     string
	StartedAt        time.Time `gorm:"not null"`
	CompletedAt      *time.Time
}

// ListRecentLogs returns the most recent sync log rows, newest first.
func ListRecentLogs(db *gorm.DB, limit int) ([]SyncLog, error) {
	var logs []SyncLog
	err := db.Order("started_at DESC, id DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	return logs, nil
}
