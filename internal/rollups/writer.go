package rollups

import (
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"tidemark/internal/aggregation"
)

// Day truncates a timestamp to its UTC calendar day, the key granularity
// of every rollup table.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Write replaces the rollup rows for (projectID, date) with the given
// aggregation result. The delete across all six tables and the following
// inserts run in a single transaction, so re-running a sync is an idempotent
// upsert and readers never observe a mix of old and new rows. Dimensions
// with zero rows are represented by absence, not by empty-valued rows.
func Write(dbManager cartridge.DBManager, logger *slog.Logger, projectID uint, date time.Time, result *aggregation.Result) error {
	day := Day(date)
	db := dbManager.GetConnection()

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := deleteForDay(tx, projectID, day); err != nil {
			return err
		}
		return insertResult(tx, projectID, day, result)
	})
	if err != nil {
		return fmt.Errorf("failed to write rollups for project %d on %s: %w",
			projectID, day.Format("2006-01-02"), err)
	}

	logger.Debug("Wrote rollups",
		slog.Uint64("project_id", uint64(projectID)),
		slog.Time("date", day),
		slog.Int("pages", len(result.TopPages)),
		slog.Int("referrers", len(result.Referrers)),
		slog.Int("devices", len(result.Devices)),
		slog.Int("event_types", len(result.EventTypes)),
		slog.Int("elements", len(result.ClickedElements)))
	return nil
}

// DeleteForDay removes all rollup rows for (projectID, date) in one
// transaction. Exposed for retention cleanup.
func DeleteForDay(dbManager cartridge.DBManager, logger *slog.Logger, projectID uint, date time.Time) error {
	day := Day(date)
	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return deleteForDay(tx, projectID, day)
	})
}

func deleteForDay(tx *gorm.DB, projectID uint, day time.Time) error {
	models := []any{
		&DailyStat{},
		&PageStat{},
		&ReferrerStat{},
		&DeviceStat{},
		&EventTypeStat{},
		&ClickedElementStat{},
	}
	for _, model := range models {
		if err := tx.Where("project_id = ? AND date = ?", projectID, day).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to delete prior rollups: %w", err)
		}
	}
	return nil
}

func insertResult(tx *gorm.DB, projectID uint, day time.Time, result *aggregation.Result) error {
	now := time.Now().UTC()

	daily := DailyStat{
		ProjectID:          projectID,
		Date:               day,
		PageViews:          result.Totals.PageViews,
		UniqueVisitors:     result.Totals.UniqueVisitors,
		Sessions:           result.Totals.Sessions,
		Clicks:             result.Totals.Clicks,
		Scrolls:            result.Totals.Scrolls,
		Errors:             result.Totals.Errors,
		AvgSessionDuration: result.Totals.AvgSessionDuration,
		BounceRate:         result.Totals.BounceRate,
		AvgScrollDepth:     result.Totals.AvgScrollDepth,
		RageClicks:         result.Totals.RageClicks,
		DeadClicks:         result.Totals.DeadClicks,
		ErrorClicks:        result.Totals.ErrorClicks,
		CreatedAt:          now,
	}
	if err := tx.Create(&daily).Error; err != nil {
		return fmt.Errorf("failed to insert daily stats: %w", err)
	}

	if len(result.TopPages) > 0 {
		rows := make([]PageStat, 0, len(result.TopPages))
		for _, bucket := range result.TopPages {
			rows = append(rows, PageStat{
				ProjectID:      projectID,
				Date:           day,
				Path:           bucket.Path,
				PageViews:      bucket.PageViews,
				UniqueVisitors: bucket.UniqueVisitors,
				CreatedAt:      now,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert page stats: %w", err)
		}
	}

	if len(result.Referrers) > 0 {
		rows := make([]ReferrerStat, 0, len(result.Referrers))
		for _, bucket := range result.Referrers {
			rows = append(rows, ReferrerStat{
				ProjectID:      projectID,
				Date:           day,
				Referrer:       bucket.Referrer,
				Domain:         bucket.Domain,
				Visits:         bucket.Visits,
				UniqueVisitors: bucket.UniqueVisitors,
				CreatedAt:      now,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert referrer stats: %w", err)
		}
	}

	if len(result.Devices) > 0 {
		rows := make([]DeviceStat, 0, len(result.Devices))
		for _, bucket := range result.Devices {
			rows = append(rows, DeviceStat{
				ProjectID:       projectID,
				Date:            day,
				DeviceType:      bucket.DeviceType,
				Browser:         bucket.Browser,
				OperatingSystem: bucket.OS,
				Count:           bucket.Count,
				UniqueVisitors:  bucket.UniqueVisitors,
				CreatedAt:       now,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert device stats: %w", err)
		}
	}

	if len(result.EventTypes) > 0 {
		rows := make([]EventTypeStat, 0, len(result.EventTypes))
		for _, bucket := range result.EventTypes {
			rows = append(rows, EventTypeStat{
				ProjectID:      projectID,
				Date:           day,
				EventType:      bucket.EventType,
				Count:          bucket.Count,
				UniqueVisitors: bucket.UniqueVisitors,
				CreatedAt:      now,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert event type stats: %w", err)
		}
	}

	if len(result.ClickedElements) > 0 {
		rows := make([]ClickedElementStat, 0, len(result.ClickedElements))
		for _, bucket := range result.ClickedElements {
			rows = append(rows, ClickedElementStat{
				ProjectID:      projectID,
				Date:           day,
				Selector:       bucket.Selector,
				Tag:            bucket.Tag,
				Text:           bucket.Text,
				Page:           bucket.Page,
				Clicks:         bucket.Clicks,
				UniqueVisitors: bucket.UniqueVisitors,
				CreatedAt:      now,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert clicked element stats: %w", err)
		}
	}

	return nil
}
