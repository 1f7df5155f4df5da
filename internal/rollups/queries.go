package rollups

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GetDailyStat returns the daily summary row for (projectID, date), or
// gorm.ErrRecordNotFound when the day has no rollup.
func GetDailyStat(db *gorm.DB, projectID uint, date time.Time) (*DailyStat, error) {
	var stat DailyStat
	err := db.Where("project_id = ? AND date = ?", projectID, Day(date)).First(&stat).Error
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// GetTopPages returns the ranked page rows for (projectID, date).
func GetTopPages(db *gorm.DB, projectID uint, date time.Time, limit int) ([]PageStat, error) {
	var stats []PageStat
	err := db.Where("project_id = ? AND date = ?", projectID, Day(date)).
		Order("page_views DESC").
		Limit(limit).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get top pages: %w", err)
	}
	return stats, nil
}

// GetTopReferrers returns the ranked referrer rows for (projectID, date).
func GetTopReferrers(db *gorm.DB, projectID uint, date time.Time, limit int) ([]ReferrerStat, error) {
	var stats []ReferrerStat
	err := db.Where("project_id = ? AND date = ?", projectID, Day(date)).
		Order("visits DESC").
		Limit(limit).
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get top referrers: %w", err)
	}
	return stats, nil
}

// CountRowsForDay returns the number of rollup rows across all six tables
// for (projectID, date). Used by operational tooling to sanity-check a run.
func CountRowsForDay(db *gorm.DB, projectID uint, date time.Time) (int64, error) {
	day := Day(date)
	var total int64
	for _, model := range []any{
		&DailyStat{}, &PageStat{}, &ReferrerStat{},
		&DeviceStat{}, &EventTypeStat{}, &ClickedElementStat{},
	} {
		var count int64
		err := db.Model(model).Where("project_id = ? AND date = ?", projectID, day).Count(&count).Error
		if err != nil {
			return 0, fmt.Errorf("failed to count rollup rows: %w", err)
		}
		total += count
	}
	return total, nil
}
