/*
Package metrics provides Prometheus metrics collection and a small
component-health registry for the Core Extraction Engine, exposed over
HTTP by pkg/statusserver for external observability during a
long-running backfill.

# Architecture

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                             │
	│  ┌──────────────────────────────────────────┐             │
	│  │          Prometheus Collectors             │             │
	│  │  - TasksTotal, PagesPersistedTotal          │             │
	│  │  - RequestsTotal, RequestDuration           │             │
	│  │  - RateLimiterRPS, CircuitBreakerState      │             │
	│  │  - ContentBlobsTotal, WriterQueueDepth       │             │
	│  │  - PlannerDuration, ReconciliationDuration   │             │
	│  └──────────────────┬───────────────────────┘             │
	│                     │                                       │
	│                     ▼                                       │
	│  promhttp.Handler() ──► GET /metrics                         │
	│                                                             │
	│  ┌──────────────────────────────────────────┐             │
	│  │        Component Health Registry           │             │
	│  │  - RegisterComponent/UpdateComponent        │             │
	│  │  - GetHealth / GetReadiness                 │             │
	│  └──────────────────┬───────────────────────┘             │
	│                     │                                       │
	│                     ▼                                       │
	│  HealthHandler/ReadyHandler/LivenessHandler                  │
	│       ──► GET /health, /ready, /live                          │
	└──────────────────────────────────────────────────────────┘

# Core Components

Collectors:
  - Registered once in init(); every component increments or observes
    its own metric rather than reaching into another package's state

Component Health Registry:
  - A small in-process map of component name -> healthy/unhealthy,
    updated by the Coordinator as it constructs storage, the writer,
    and the HTTP client
  - GetReadiness treats {storage, writer, httpclient} as critical:
    missing or unhealthy any of them reports not_ready

Timer:
  - NewTimer/ObserveDuration wraps the common "measure an operation,
    record it on a histogram" pattern used by the Planner and
    Reconciler

# Integration points

  - pkg/coordinator: RegisterComponent at each construction step
  - pkg/httpclient: CircuitBreakerState, RequestsTotal, RequestDuration
    (RateLimiterRPS and ContentBlobsTotal are registered but no package
    sets them)
  - pkg/writer: WriterQueueDepth, StorageRetriesTotal
  - pkg/planner, pkg/reconciler: PlannerDuration, ReconciliationDuration,
    ReconciliationCyclesTotal
  - pkg/statusserver: mounts Handler(), HealthHandler(), ReadyHandler(),
    LivenessHandler() on the optional status server
*/
package metrics
