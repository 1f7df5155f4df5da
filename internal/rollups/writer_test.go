package rollups_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tidemark/internal/aggregation"
	"tidemark/internal/events"
	"tidemark/internal/rollups"
	"tidemark/internal/testsupport"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func sampleResult() *aggregation.Result {
	return aggregation.Aggregate([]events.RawEvent{
		testsupport.PageView("s1", "u1", "/a", day.Add(time.Second)),
		testsupport.PageView("s1", "u1", "/b", day.Add(3*time.Second)),
		testsupport.PageView("s2", "", "/a", day.Add(5*time.Second)),
		testsupport.Click("s2", "/a", map[string]any{"tag": "button", "id": "cta"}, day.Add(6*time.Second)),
	})
}

func TestWritePersistsAllDimensions(t *testing.T) {
	manager, logger := testsupport.SetupTestDBManager(t)
	db := manager.GetConnection()
	project := testsupport.CreateTestProject(t, db, "Acme", "acme.test", true)

	require.NoError(t, rollups.Write(manager, logger, project.ID, day, sampleResult()))

	daily, err := rollups.GetDailyStat(db, project.ID, day)
	require.NoError(t, err)
	assert.Equal(t, 3, daily.PageViews)
	assert.Equal(t, 2, daily.UniqueVisitors)
	assert.Equal(t, 2, daily.Sessions)
	assert.Equal(t, 1, daily.Clicks)

	pages, err := rollups.GetTopPages(db, project.ID, day, 10)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "/a", pages[0].Path)
	assert.Equal(t, 2, pages[0].PageViews)

	var elements []rollups.ClickedElementStat
	require.NoError(t, db.Where("project_id = ?", project.ID).Find(&elements).Error)
	require.Len(t, elements, 1)
	assert.Equal(t, "#cta", elements[0].Selector)
}

func TestWriteReplacesPriorRows(t *testing.T) {
	manager, logger := testsupport.SetupTestDBManager(t)
	db := manager.GetConnection()
	project := testsupport.CreateTestProject(t, db, "Acme", "acme.test", true)

	require.NoError(t, rollups.Write(manager, logger, project.ID, day, sampleResult()))

	// Second write for the same day with a smaller result must fully
	// replace the first, not accumulate on top of it.
	smaller := aggregation.Aggregate([]events.RawEvent{
		testsupport.PageView("s9", "", "/only", day.Add(time.Second)),
	})
	require.NoError(t, rollups.Write(manager, logger, project.ID, day, smaller))

	daily, err := rollups.GetDailyStat(db, project.ID, day)
	require.NoError(t, err)
	assert.Equal(t, 1, daily.PageViews)

	pages, err := rollups.GetTopPages(db, project.ID, day, 10)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "/only", pages[0].Path)

	// Dimensions that went away are gone, not left behind.
	var elements []rollups.ClickedElementStat
	require.NoError(t, db.Where("project_id = ?", project.ID).Find(&elements).Error)
	assert.Empty(t, elements)
}

func TestWriteScopedToProjectAndDay(t *testing.T) {
	manager, logger := testsupport.SetupTestDBManager(t)
	db := manager.GetConnection()
	projectA := testsupport.CreateTestProject(t, db, "A", "a.test", true)
	projectB := testsupport.CreateTestProject(t, db, "B", "b.test", true)
	otherDay := day.AddDate(0, 0, 1)

	require.NoError(t, rollups.Write(manager, logger, projectA.ID, day, sampleResult()))
	require.NoError(t, rollups.Write(manager, logger, projectB.ID, day, sampleResult()))
	require.NoError(t, rollups.Write(manager, logger, projectA.ID, otherDay, sampleResult()))

	// Rewriting project A's first day leaves the other keys untouched.
	empty := aggregation.Aggregate(nil)
	require.NoError(t, rollups.Write(manager, logger, projectA.ID, day, empty))

	_, err := rollups.GetDailyStat(db, projectB.ID, day)
	assert.NoError(t, err)
	_, err = rollups.GetDailyStat(db, projectA.ID, otherDay)
	assert.NoError(t, err)

	daily, err := rollups.GetDailyStat(db, projectA.ID, day)
	require.NoError(t, err)
	assert.Equal(t, 0, daily.PageViews)
}

func TestWriteEmptyResultWritesOnlyDailyRow(t *testing.T) {
	manager, logger := testsupport.SetupTestDBManager(t)
	db := manager.GetConnection()
	project := testsupport.CreateTestProject(t, db, "Acme", "acme.test", true)

	require.NoError(t, rollups.Write(manager, logger, project.ID, day, aggregation.Aggregate(nil)))

	count, err := rollups.CountRowsForDay(db, project.ID, day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeleteForDay(t *testing.T) {
	manager, logger := testsupport.SetupTestDBManager(t)
	db := manager.GetConnection()
	project := testsupport.CreateTestProject(t, db, "Acme", "acme.test", true)

	require.NoError(t, rollups.Write(manager, logger, project.ID, day, sampleResult()))
	require.NoError(t, rollups.DeleteForDay(manager, logger, project.ID, day))

	count, err := rollups.CountRowsForDay(db, project.ID, day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = rollups.GetDailyStat(db, project.ID, day)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDay(t *testing.T) {
	// Local wall clock 23:59 on the 14th is still the 14th in UTC here.
	ts := time.Date(2026, 3, 14, 23, 59, 59, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, day, rollups.Day(ts))
	assert.Equal(t, day, rollups.Day(day.Add(13*time.Hour)))
	// But 00:30 local on the 15th belongs to the 14th in UTC.
	assert.Equal(t, day, rollups.Day(time.Date(2026, 3, 15, 0, 30, 0, 0, time.FixedZone("CET", 3600))))
}
