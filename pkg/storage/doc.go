/*
Package storage provides the BoltDB-backed Content Store, Request Log, and
Task Store that together form the CEE's single-writer persistence layer.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│  BoltStore                                                │
	│  - File: <DB_PATH>                                        │
	│  - Format: B+tree with MVCC                                │
	│  - Transactions: ACID with fsync                           │
	│                                                            │
	│  Buckets:                                                  │
	│    content            (content_id -> ContentBlob)          │
	│    content_by_hash    (content_sha256 -> content_id)        │
	│    requests           (request_id -> RequestLogEntry)      │
	│    requests_by_task   (endpoint|date|page|id -> request_id)│
	│    tasks              (task_id -> Task)                   │
	└────────────────────────────────────────────────────────────┘

# Dedup contract

PersistSuccess looks up content_sha256 in content_by_hash. A hit increments
the existing blob's reference_count and advances last_seen_at; a miss
inserts a new ContentBlob and indexes its hash. Either branch, plus the
Request Log insert, commits inside one bbolt write transaction, so a
crash mid-write never leaves a Request Log row pointing at a content id
that doesn't exist.

# Transaction model

Read transactions (db.View) give a consistent MVCC snapshot; write
transactions (db.Update) are serialized by bbolt itself, which is the
concrete embodiment of the spec's single-writer requirement — there is no
separate locking layer to get wrong.

# Integration points

  - pkg/writer drives every write transaction through PersistSuccess/
    PersistError/CreateTaskIfAbsent/UpdateTask.
  - pkg/reconciler, pkg/coordinator and pkg/statusserver are read-only
    callers.
  - pkg/executor and pkg/discoverer read task lists from the store but
    never write to it; they hand results to the Writer.
*/
package storage
