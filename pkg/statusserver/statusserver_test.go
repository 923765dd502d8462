package statusserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStatusHandlerReportsTaskCountsByStatus tests the /status JSON body
// against a store seeded with tasks across several statuses.
func TestStatusHandlerReportsTaskCountsByStatus(t *testing.T) {
	store := newTestStore(t)
	for _, task := range []*types.Task{
		{TaskID: "t1", Status: types.TaskComplete},
		{TaskID: "t2", Status: types.TaskComplete},
		{TaskID: "t3", Status: types.TaskPartial},
		{TaskID: "t4", Status: types.TaskPending},
	} {
		_, err := store.CreateTaskIfAbsent(task)
		require.NoError(t, err)
	}

	srv := New(store)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TasksByStatus["COMPLETE"])
	assert.Equal(t, 1, resp.TasksByStatus["PARTIAL"])
	assert.Equal(t, 1, resp.TasksByStatus["PENDING"])
	assert.Equal(t, 0, resp.TasksByStatus["FAILED"])
}

// TestStatusHandlerRejectsNonGet tests the method guard on /status.
func TestStatusHandlerRejectsNonGet(t *testing.T) {
	store := newTestStore(t)
	srv := New(store)

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// TestMetricsEndpointServesPrometheusFormat tests that /metrics is
// mounted and returns the text exposition format.
func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	store := newTestStore(t)
	srv := New(store)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

// TestLiveEndpointAlwaysReportsOK tests the liveness probe's
// always-200-if-process-is-up contract.
func TestLiveEndpointAlwaysReportsOK(t *testing.T) {
	store := newTestStore(t)
	srv := New(store)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
