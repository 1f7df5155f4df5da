// Package eventstore provides the ClickHouse-backed implementation of the
// raw event store read interface. The events table is append-only and owned
// by the ingest service; tidemark only ever selects from it.
package eventstore

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2"

	"tidemark/internal/config"
	"tidemark/internal/events"
)

const rawEventsTable = "raw_events"

// ClickHouseStore implements events.Store over a native-protocol
// ClickHouse connection.
type ClickHouseStore struct {
	conn   clickhouse.Conn
	logger *slog.Logger
}

// NewClickHouseStore connects to the configured ClickHouse instance and
// verifies the connection with a ping.
func NewClickHouseStore(cfg *config.Config, logger *slog.Logger) (*ClickHouseStore, error) {
	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.EventStoreHost, cfg.EventStorePort)},
		Auth: clickhouse.Auth{
			Database: cfg.EventStoreDatabase,
			Username: cfg.EventStoreUser,
			Password: cfg.EventStorePassword,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping event store: %w", err)
	}

	logger.Info("Connected to event store",
		slog.String("host", cfg.EventStoreHost),
		slog.Int("port", cfg.EventStorePort),
		slog.String("database", cfg.EventStoreDatabase))

	return &ClickHouseStore{conn: conn, logger: logger}, nil
}

// FetchForDay returns all raw events for projectID on the given UTC
// calendar day. The metadata column holds a JSON payload; malformed
// payloads decode to empty metadata rather than failing the batch.
func (s *ClickHouseStore) FetchForDay(ctx context.Context, projectID uint, date time.Time) ([]events.RawEvent, error) {
	day := date.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	query := fmt.Sprintf(`
		SELECT event_type, url, session_id, user_id, user_agent, referrer, metadata, timestamp
		FROM %s
		WHERE project_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, rawEventsTable)

	rows, err := s.conn.Query(ctx, query, uint32(projectID), dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw events: %w", err)
	}
	defer rows.Close()

	var batch []events.RawEvent
	for rows.Next() {
		var (
			eventType string
			url       string
			sessionID string
			userID    string
			userAgent string
			referrer  string
			metadata  string
			timestamp time.Time
		)
		if err := rows.Scan(&eventType, &url, &sessionID, &userID, &userAgent, &referrer, &metadata, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan raw event: %w", err)
		}

		batch = append(batch, events.RawEvent{
			EventType: eventType,
			URL:       url,
			SessionID: sessionID,
			UserID:    userID,
			UserAgent: userAgent,
			Referrer:  referrer,
			Metadata:  events.DecodeMetadata(metadata),
			Timestamp: timestamp,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read raw events: %w", err)
	}

	s.logger.Debug("Fetched raw events",
		slog.Uint64("project_id", uint64(projectID)),
		slog.Time("date", dayStart),
		slog.Int("count", len(batch)))
	return batch, nil
}

// Close releases the underlying connection.
func (s *ClickHouseStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
