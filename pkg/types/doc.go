/*
Package types defines the core data structures shared across the Core
Extraction Engine (CEE).

This package contains the domain model every other package reads or
writes: endpoint descriptors loaded from the registry, extraction tasks
and their state machine, content-addressed blobs, and request log
entries. These types are the vocabulary every component — Planner,
Discoverer, Executor, Reconciler, Coordinator — shares.

# Architecture

The types package has no behavior of its own; it is pure data:

  - Endpoint: an immutable descriptor for one PNCP API surface
  - Task and TaskStatus: one unit of extraction work and its lifecycle
  - ContentBlob: a content-addressed, deduplicated response payload
  - RequestLogEntry: metadata for one HTTP request, linked to a ContentBlob
  - CircuitState and RunPhase: small enums used by the HTTP Client and
    Coordinator respectively
  - FetchResult: the HTTP Client's unconditional per-request output

All types are designed to be:
  - Serializable (JSON for storage and the status endpoint)
  - Stored directly as bbolt values — no separate wire representation
  - Self-documenting (clear field names, explicit JSON tags)

# Core Types

Endpoint Catalog:
  - Endpoint: name, path template, page size bounds, date parameter
    names, granularity, and the modality values it must be crossed with

Task Lifecycle:
  - Task: endpoint, data date, optional modality, status, total_pages,
    missing_pages, and the plan_fingerprint it was generated under
  - TaskStatus: PENDING -> DISCOVERING -> FETCHING -> (PARTIAL) ->
    COMPLETE, with FAILED reachable from any non-terminal state

Content Store:
  - ContentBlob: content_id, payload, content_sha256, reference_count,
    first_seen_at/last_seen_at for garbage-collection candidates

Request Log:
  - RequestLogEntry: one row per HTTP request/response pair, whether or
    not it produced persistable content

# Integration points

  - pkg/registry: loads and validates Endpoint values from YAML
  - pkg/planner: generates Task values and computes plan_fingerprint
  - pkg/discoverer, pkg/executor: mutate and consume Task/FetchResult
  - pkg/reconciler: diffs RequestLogEntry rows against each Task's
    1..TotalPages range and rewrites Task.MissingPages
  - pkg/storage: persists every type in this package via bbolt
  - pkg/statusserver: reports TaskStatus counts over HTTP
*/
package types
