package discoverer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franklinbaldo/baliza/pkg/httpclient"
	"github.com/franklinbaldo/baliza/pkg/planner"
	"github.com/franklinbaldo/baliza/pkg/registry"
	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
	"github.com/franklinbaldo/baliza/pkg/writer"
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

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	body := `
endpoints:
  - name: contratos
    path: /v1/contratos
    active: true
    granularity: day
    page_size: 50
    page_size_min: 10
    page_size_max: 500
    date_params: [dataInicial, dataFinal]
`
	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	reg, err := registry.Load(path)
	require.NoError(t, err)
	return reg
}

func newTestClient(t *testing.T, baseURL string) *httpclient.Client {
	t.Helper()
	opts := httpclient.DefaultOptions(baseURL, 50, 10, time.Second)
	opts.HTTP2Enabled = false
	opts.MaxAttempts = 1
	c, err := httpclient.New(opts)
	require.NoError(t, err)
	return c
}

func seedPendingTask(t *testing.T, w *writer.Writer, date time.Time) string {
	t.Helper()
	taskID := planner.TaskID("contratos", date, nil)
	created, err := w.CreateTaskIfAbsent(&types.Task{
		TaskID:       taskID,
		EndpointName: "contratos",
		DataDate:     date,
		Status:       types.TaskPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return taskID
}

// TestDiscoverMultiPageTaskTransitionsToFetching tests that a task whose
// first page reports more than one total page lands in FETCHING with the
// remaining pages recorded as missing.
func TestDiscoverMultiPageTaskTransitionsToFetching(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalRegistros":300,"totalPaginas":3,"data":[{"id":1}]}`))
	}))
	defer srv.Close()

	store := newTestStore(t)
	w := writer.New(store, 8)
	w.Start(context.Background())
	t.Cleanup(w.Shutdown)

	reg := newTestRegistry(t)
	client := newTestClient(t, srv.URL)
	d := New(store, w, client, reg, 4)

	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	taskID := seedPendingTask(t, w, date)

	require.NoError(t, d.Run(context.Background(), "run-1"))

	got, err := store.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFetching, got.Status)
	assert.Equal(t, []int{2, 3}, got.MissingPages)
}

// TestDiscoverEmptyTaskTransitionsToComplete tests that totalPages<=0
// short-circuits straight to COMPLETE, never through Reconciler.
func TestDiscoverEmptyTaskTransitionsToComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := newTestStore(t)
	w := writer.New(store, 8)
	w.Start(context.Background())
	t.Cleanup(w.Shutdown)

	reg := newTestRegistry(t)
	client := newTestClient(t, srv.URL)
	d := New(store, w, client, reg, 4)

	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	taskID := seedPendingTask(t, w, date)

	require.NoError(t, d.Run(context.Background(), "run-1"))

	got, err := store.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskComplete, got.Status)
	assert.Empty(t, got.MissingPages)
}

// TestDiscoverPermanentFetchErrorMarksTaskFailed tests that a 404 on
// discovery fails the task rather than retrying forever.
func TestDiscoverPermanentFetchErrorMarksTaskFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := newTestStore(t)
	w := writer.New(store, 8)
	w.Start(context.Background())
	t.Cleanup(w.Shutdown)

	reg := newTestRegistry(t)
	client := newTestClient(t, srv.URL)
	d := New(store, w, client, reg, 4)

	date := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	taskID := seedPendingTask(t, w, date)

	require.NoError(t, d.Run(context.Background(), "run-1"))

	got, err := store.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
	assert.NotEmpty(t, got.LastError)
}

// TestDiscoverUnknownEndpointFailsWithoutFetching tests that a task
// referencing an endpoint no longer in the registry fails fast.
func TestDiscoverUnknownEndpointFailsWithoutFetching(t *testing.T) {
	store := newTestStore(t)
	w := writer.New(store, 8)
	w.Start(context.Background())
	t.Cleanup(w.Shutdown)

	reg := newTestRegistry(t)
	client := newTestClient(t, "http://127.0.0.1:0")
	d := New(store, w, client, reg, 4)

	date := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	taskID := planner.TaskID("nonexistent", date, nil)
	created, err := w.CreateTaskIfAbsent(&types.Task{
		TaskID:       taskID,
		EndpointName: "nonexistent",
		DataDate:     date,
		Status:       types.TaskPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, d.Run(context.Background(), "run-1"))

	got, err := store.GetTask(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, got.Status)
}
