// Package testsupport holds shared helpers for package tests: an isolated
// in-memory database, a fake raw event store, and event constructors.
package testsupport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tidemark/internal/events"
	"tidemark/internal/projects"
	"tidemark/internal/rollups"
	"tidemark/internal/syncer"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with tidemark's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all tidemark models for migration
func allModels() []any {
	return []any{
		&projects.Project{},
		&rollups.DailyStat{},
		&rollups.PageStat{},
		&rollups.ReferrerStat{},
		&rollups.DeviceStat{},
		&rollups.EventTypeStat{},
		&rollups.ClickedElementStat{},
		&syncer.SyncLog{},
	}
}

// SetupTestDB creates a test database with all tidemark models migrated.
// Uses a named in-memory database with cache=shared so multiple connections
// within a test share the same database, cached by root test name.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager and logger.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestProject creates a project in the database
func CreateTestProject(t *testing.T, db *gorm.DB, name, domain string, active bool) projects.Project {
	t.Helper()

	project := projects.Project{
		Name:      name,
		Domain:    domain,
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("testsupport: failed to create project: %v", err)
	}
	// GORM substitutes the column default (true) for a zero-valued Active on
	// insert, so force the requested value with an explicit update.
	if !active {
		if err := db.Model(&project).Update("active", false).Error; err != nil {
			t.Fatalf("testsupport: failed to deactivate project: %v", err)
		}
		project.Active = false
	}
	return project
}

// FakeEventStore is an in-memory events.Store keyed by project and day.
type FakeEventStore struct {
	mu      sync.Mutex
	batches map[string][]events.RawEvent
	err     error

	// FetchCount tracks how many fetches were issued, across all keys.
	FetchCount int
}

// NewFakeEventStore creates an empty fake store.
func NewFakeEventStore() *FakeEventStore {
	return &FakeEventStore{batches: make(map[string][]events.RawEvent)}
}

func storeKey(projectID uint, date time.Time) string {
	return fmt.Sprintf("%d:%s", projectID, date.UTC().Format("2006-01-02"))
}

// SetEvents sets the batch returned for (projectID, date).
func (f *FakeEventStore) SetEvents(projectID uint, date time.Time, batch []events.RawEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[storeKey(projectID, date)] = batch
}

// SetError makes every fetch fail with err until reset with nil.
func (f *FakeEventStore) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// FetchForDay implements events.Store.
func (f *FakeEventStore) FetchForDay(_ context.Context, projectID uint, date time.Time) ([]events.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCount++
	if f.err != nil {
		return nil, f.err
	}
	return f.batches[storeKey(projectID, date)], nil
}

// PageView builds a pageview raw event for tests.
func PageView(sessionID, userID, url string, ts time.Time) events.RawEvent {
	return events.RawEvent{
		EventType: events.EventTypePageView,
		URL:       url,
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: ts,
	}
}

// Click builds a click raw event carrying an element descriptor.
func Click(sessionID, url string, element map[string]any, ts time.Time) events.RawEvent {
	var metadata events.Metadata
	if element != nil {
		metadata = events.Metadata{"element": element}
	}
	return events.RawEvent{
		EventType: events.EventTypeClick,
		URL:       url,
		SessionID: sessionID,
		Metadata:  metadata,
		Timestamp: ts,
	}
}
