package http_test

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/events"
	"tidemark/internal/http"
	"tidemark/internal/rollups"
	"tidemark/internal/syncer"
	"tidemark/internal/testsupport"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func setupServer(t *testing.T) (*http.Server, *testsupport.TestDBManager, *testsupport.FakeEventStore) {
	manager, logger := testsupport.SetupTestDBManager(t)
	store := testsupport.NewFakeEventStore()
	s := syncer.NewSyncer(manager, store, logger, 5*time.Second)
	return http.NewServer(manager, s, logger), manager, store
}

func decodeBody(t *testing.T, resp *nethttp.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestHealth(t *testing.T) {
	srv, _, _ := setupServer(t)

	req, _ := nethttp.NewRequest(nethttp.MethodGet, "/health", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestSyncProjectEndpoint(t *testing.T) {
	srv, manager, store := setupServer(t)
	db := manager.GetConnection()
	project := testsupport.CreateTestProject(t, db, "Acme", "acme.test", true)
	store.SetEvents(project.ID, day, []events.RawEvent{
		testsupport.PageView("s1", "", "/a", day.Add(time.Second)),
	})

	req, _ := nethttp.NewRequest(nethttp.MethodPost, "/api/v1/sync/1?date=2026-03-14", nil)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "synced", body["status"])
	assert.Equal(t, "2026-03-14", body["date"])

	daily, err := rollups.GetDailyStat(db, project.ID, day)
	require.NoError(t, err)
	assert.Equal(t, 1, daily.PageViews)
}

func TestSyncProjectEndpointBadInput(t *testing.T) {
	srv, _, _ := setupServer(t)

	t.Run("invalid project id", func(t *testing.T) {
		req, _ := nethttp.NewRequest(nethttp.MethodPost, "/api/v1/sync/banana", nil)
		resp, err := srv.App().Test(req)
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid date", func(t *testing.T) {
		req, _ := nethttp.NewRequest(nethttp.MethodPost, "/api/v1/sync/1?date=14-03-2026", nil)
		resp, err := srv.App().Test(req)
		require.NoError(t, err)
		assert.Equal(t, nethttp.StatusBadRequest, resp.StatusCode)
	})
}

func TestSyncProjectEndpointFetchFailure(t *testing.T) {
	srv, manager, store := setupServer(t)
	testsupport.CreateTestProject(t, manager.GetConnection(), "Acme", "acme.test", true)
	store.SetError(assert.AnError)

	req, _ := nethttp.NewRequest(nethttp.MethodPost, "/api/v1/sync/1?date=2026-03-14", nil)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusInternalServerError, resp.StatusCode)
}

func TestSyncAllEndpoint(t *testing.T) {
	srv, manager, store := setupServer(t)
	db := manager.GetConnection()
	first := testsupport.CreateTestProject(t, db, "First", "first.test", true)
	second := testsupport.CreateTestProject(t, db, "Second", "second.test", true)
	store.SetEvents(first.ID, day, []events.RawEvent{
		testsupport.PageView("s1", "", "/a", day.Add(time.Second)),
	})
	store.SetEvents(second.ID, day, []events.RawEvent{
		testsupport.PageView("s2", "", "/b", day.Add(time.Second)),
	})

	req, _ := nethttp.NewRequest(nethttp.MethodPost, "/api/v1/sync/all?date=2026-03-14", nil)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	_, err = rollups.GetDailyStat(db, first.ID, day)
	assert.NoError(t, err)
	_, err = rollups.GetDailyStat(db, second.ID, day)
	assert.NoError(t, err)
}

func TestSyncLogsEndpoint(t *testing.T) {
	srv, manager, store := setupServer(t)
	db := manager.GetConnection()
	project := testsupport.CreateTestProject(t, db, "Acme", "acme.test", true)
	store.SetEvents(project.ID, day, []events.RawEvent{
		testsupport.PageView("s1", "", "/a", day.Add(time.Second)),
	})

	req, _ := nethttp.NewRequest(nethttp.MethodPost, "/api/v1/sync/1?date=2026-03-14", nil)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, _ = nethttp.NewRequest(nethttp.MethodGet, "/api/v1/sync-logs", nil)
	resp, err = srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	logs, ok := body["sync_logs"].([]any)
	require.True(t, ok)
	require.Len(t, logs, 1)
	entry, ok := logs[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, syncer.StatusSuccess, entry["Status"])
}
