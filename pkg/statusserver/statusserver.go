// Package statusserver exposes a small HTTP listener the Coordinator
// optionally starts during a run: /status reports task counts by status
// and the content blob count, /metrics serves the Prometheus registry.
package statusserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/franklinbaldo/baliza/pkg/metrics"
	"github.com/franklinbaldo/baliza/pkg/storage"
	"github.com/franklinbaldo/baliza/pkg/types"
)

// StatusServer serves /status and /metrics for external observability
// during a long-running backfill.
type StatusServer struct {
	store storage.Store
	mux   *http.ServeMux
}

// New builds a StatusServer reading task state from store.
func New(store storage.Store) *StatusServer {
	mux := http.NewServeMux()
	s := &StatusServer{store: store, mux: mux}
	mux.HandleFunc("/status", s.statusHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	return s
}

// Start runs the HTTP server at addr until it errors or is shut down.
func (s *StatusServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// StatusResponse is the /status endpoint's payload: task counts by
// status, per the Coordinator's end-of-run summary contract.
type StatusResponse struct {
	Timestamp  time.Time      `json:"timestamp"`
	TasksByStatus map[string]int `json:"tasks_by_status"`
	ContentBlobs  int            `json:"content_blobs"`
}

func (s *StatusServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tasks, err := s.store.ListTasks()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	counts := make(map[string]int)
	for _, status := range []types.TaskStatus{
		types.TaskPending, types.TaskDiscovering, types.TaskFetching,
		types.TaskPartial, types.TaskComplete, types.TaskFailed,
	} {
		counts[string(status)] = 0
	}
	for _, t := range tasks {
		counts[string(t.Status)]++
	}

	blobs, err := s.store.ListContent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := StatusResponse{
		Timestamp:     time.Now(),
		TasksByStatus: counts,
		ContentBlobs:  len(blobs),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Handler returns the underlying mux for embedding in other servers.
func (s *StatusServer) Handler() http.Handler {
	return s.mux
}
