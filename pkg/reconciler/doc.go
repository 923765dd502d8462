/*
Package reconciler is the sole authority that moves tasks out of
FETCHING or PARTIAL: on each pass it diffs the Request Log's persisted
pages against a task's originally planned page range and updates
missing_pages and status to match, so that COMPLETE always reflects
what is actually on disk rather than what the Executor merely attempted.

# Architecture

	┌──────────────────── RECONCILE PASS ──────────────────────┐
	│                                                             │
	│  ListTasksByStatus(FETCHING, PARTIAL)                       │
	│       │                                                     │
	│       ▼                                                     │
	│  for each task:                                              │
	│    ListRequestsForTask(endpoint, date, modality)             │
	│       │                                                     │
	│       ▼                                                     │
	│    persisted := {page: true for every 200-code request}      │
	│    original  := [1..task.TotalPages]                         │
	│    missing   := original - persisted                          │
	│       │                                                     │
	│       ▼                                                     │
	│    missing empty?        ─► COMPLETE                          │
	│    missing shrank?       ─► PARTIAL                           │
	│    was FETCHING already? ─► PARTIAL                           │
	│    else                  ─► unchanged, skip write              │
	│       │                                                     │
	│       ▼                                                     │
	│    Writer.UpdateTask(task)                                    │
	└─────────────────────────────────────────────────────────────┘

Idempotent by construction: running Reconcile twice in a row with no
new Request Log rows produces the same missing_pages and status both
times, and the second call makes no write at all.

# Integration points

  - pkg/storage: ListTasksByStatus and ListRequestsForTask are the only
    reads; both are read-only transactions under bbolt's MVCC
  - pkg/writer: UpdateTask is the only write, going through the same
    single-writer path every other task mutation uses
  - pkg/coordinator: runs one Reconcile pass after the Executor phase
    completes; Start(interval) offers periodic reconciliation, which the
    Coordinator does not use
  - pkg/executor never sets COMPLETE; pkg/discoverer sets it only for a
    task whose first page reports zero pages (a 204 or empty response).
    Every other COMPLETE transition happens in this package
*/
package reconciler
