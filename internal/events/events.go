// Package events defines the raw event input consumed by the rollup
// pipeline and the event store interface it is read from. The raw store is
// append-only and owned by the ingest side; this subsystem only reads it.
package events

import (
	"context"
	"time"
)

// Event type vocabulary. The set is fixed-but-extensible: types outside
// this list still flow into the per-type breakdown untouched.
const (
	EventTypePageView    = "pageview"
	EventTypeClick       = "click"
	EventTypeScroll      = "scroll"
	EventTypeScrollDepth = "scroll_depth"
	EventTypeError       = "error"
	EventTypeRageClick   = "rage_click"
	EventTypeDeadClick   = "dead_click"
	EventTypeErrorClick  = "error_click"
)

// Fallback identities for events missing session or user information.
const (
	UnknownSession   = "unknown"
	AnonymousVisitor = "anonymous"
)

// RawEvent is a single tracked behavioral event as stored in the raw event
// store. All string fields except EventType may be empty. Timestamp is
// event time; day bucketing happens in the query that selects the batch.
type RawEvent struct {
	EventType string
	URL       string
	SessionID string
	UserID    string
	UserAgent string
	Referrer  string
	Metadata  Metadata
	Timestamp time.Time
}

// VisitorID returns the best-available stable identifier for the browsing
// entity behind the event: user id if known, else session id, else the
// shared anonymous bucket. The same event always yields the same id.
func (e *RawEvent) VisitorID() string {
	if e.UserID != "" {
		return e.UserID
	}
	if e.SessionID != "" {
		return e.SessionID
	}
	return AnonymousVisitor
}

// SessionKey returns the session grouping key for the event. Events without
// a session id are grouped under a single shared "unknown" session.
func (e *RawEvent) SessionKey() string {
	if e.SessionID != "" {
		return e.SessionID
	}
	return UnknownSession
}

// Store is the read surface of the raw event store. Implementations must
// support exact project and calendar-day (UTC) filtering.
type Store interface {
	// FetchForDay returns all raw events for projectID whose timestamp falls
	// on the given UTC calendar day.
	FetchForDay(ctx context.Context, projectID uint, date time.Time) ([]RawEvent, error)
}
