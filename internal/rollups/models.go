// Package rollups defines the query-ready daily summary tables and the
// writer that replaces a (project, date) slice of them as one unit.
//
// Six tables, all keyed by project and UTC calendar day:
//   - daily_stats: one row of scalar traffic totals
//   - page_stats: per-URL views and visitors, rank-truncated
//   - referrer_stats: per-referrer visits, rank-truncated
//   - device_stats: per device/browser/OS signature
//   - event_type_stats: full event-type breakdown
//   - clicked_element_stats: per clicked element, rank-truncated
package rollups

import "time"

// DailyStat is the one-row daily summary for a project.
type DailyStat struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	ProjectID          uint      `gorm:"uniqueIndex:idx_daily_unique;not null"`
	Date               time.Time `gorm:"uniqueIndex:idx_daily_unique;type:date;not null"`
	PageViews          int       `gorm:"not null;default:0"`
	UniqueVisitors     int       `gorm:"not null;default:0"`
	Sessions           int       `gorm:"not null;default:0"`
	Clicks             int       `gorm:"not null;default:0"`
	Scrolls            int       `gorm:"not null;default:0"`
	Errors             int       `gorm:"not null;default:0"`
	AvgSessionDuration float64   `gorm:"not null;default:0"` // seconds
	BounceRate         float64   `gorm:"not null;default:0"` // percent
	AvgScrollDepth     float64   `gorm:"not null;default:0"` // percent
	RageClicks         int       `gorm:"not null;default:0"`
	DeadClicks         int       `gorm:"not null;default:0"`
	ErrorClicks        int       `gorm:"not null;default:0"`
	CreatedAt          time.Time
}

// PageStat represents one URL's daily aggregate.
type PageStat struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ProjectID      uint      `gorm:"index:idx_page_project_date;not null"`
	Date           time.Time `gorm:"index:idx_page_project_date;type:date;not null"`
	Path           string    `gorm:"not null"`
	PageViews      int       `gorm:"not null;default:0"`
	UniqueVisitors int       `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

// ReferrerStat represents one referrer's daily aggregate. Domain is the
// normalized registrable host computed at aggregation time.
type ReferrerStat struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ProjectID      uint      `gorm:"index:idx_ref_project_date;not null"`
	Date           time.Time `gorm:"index:idx_ref_project_date;type:date;not null"`
	Referrer       string    `gorm:"not null"`
	Domain         string    `gorm:"not null"`
	Visits         int       `gorm:"not null;default:0"`
	UniqueVisitors int       `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

// DeviceStat represents one device/browser/OS signature's daily aggregate.
type DeviceStat struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	ProjectID       uint      `gorm:"index:idx_device_project_date;not null"`
	Date            time.Time `gorm:"index:idx_device_project_date;type:date;not null"`
	DeviceType      string    `gorm:"not null"`
	Browser         string    `gorm:"not null"`
	OperatingSystem string    `gorm:"not null"`
	Count           int       `gorm:"not null;default:0"`
	UniqueVisitors  int       `gorm:"not null;default:0"`
	CreatedAt       time.Time
}

// EventTypeStat represents one event type's daily aggregate, including
// uncategorized types passed through from the SDK.
type EventTypeStat struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ProjectID      uint      `gorm:"index:idx_type_project_date;not null"`
	Date           time.Time `gorm:"index:idx_type_project_date;type:date;not null"`
	EventType      string    `gorm:"not null"`
	Count          int       `gorm:"not null;default:0"`
	UniqueVisitors int       `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

// ClickedElementStat represents one clicked element's daily aggregate.
type ClickedElementStat struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	ProjectID      uint      `gorm:"index:idx_element_project_date;not null"`
	Date           time.Time `gorm:"index:idx_element_project_date;type:date;not null"`
	Selector       string    `gorm:"not null"`
	Tag            string    `gorm:""`
	Text           string    `gorm:""`
	Page           string    `gorm:""`
	Clicks         int       `gorm:"not null;default:0"`
	UniqueVisitors int       `gorm:"not null;default:0"`
	CreatedAt      time.Time
}
