// Package metrics exposes the Prometheus instruments every CEE component
// reports through, plus a small Timer helper for histogram observations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "baliza_tasks_total",
			Help: "Total number of extraction tasks by status",
		},
		[]string{"status"},
	)

	PagesPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baliza_pages_persisted_total",
			Help: "Total number of pages written to the Request Log by endpoint",
		},
		[]string{"endpoint"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "baliza_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "baliza_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RateLimiterRPS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "baliza_rate_limiter_rps",
			Help: "Current adaptive rate limit in requests per second",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "baliza_circuit_breaker_state",
			Help: "Circuit breaker state per endpoint (0=closed, 1=half_open, 2=open)",
		},
		[]string{"endpoint"},
	)

	ContentBlobsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "baliza_content_blobs_total",
			Help: "Total number of distinct content blobs stored",
		},
	)

	WriterQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "baliza_writer_queue_depth",
			Help: "Current number of pending results in the Writer's submit queue",
		},
	)

	StorageRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "baliza_storage_retries_total",
			Help: "Total number of Writer retry attempts after a storage error",
		},
	)

	PlannerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "baliza_planner_duration_seconds",
			Help:    "Time taken to compute and insert the task plan",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "baliza_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "baliza_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksTotal,
		PagesPersistedTotal,
		RequestsTotal,
		RequestDuration,
		RateLimiterRPS,
		CircuitBreakerState,
		ContentBlobsTotal,
		WriterQueueDepth,
		StorageRetriesTotal,
		PlannerDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// CircuitStateValue maps a breaker state string to the gauge's numeric
// encoding.
func CircuitStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 2
	case "HALF_OPEN":
		return 1
	default:
		return 0
	}
}
