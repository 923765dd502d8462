/*
Package events implements a small pub/sub broker carrying progress
events out of a running extraction: task transitions and run-level
phase changes, for any external consumer that wants a live feed rather
than polling /status.

# Architecture

	┌──────────────────── EVENT BROKER ─────────────────────┐
	│                                                          │
	│  Publisher (Coordinator, Discoverer, Executor, ...)      │
	│       │                                                  │
	│       ▼                                                  │
	│  Broker.Publish(event)                                   │
	│       │                                                  │
	│       ▼                                                  │
	│  internal channel ──► broadcast to every Subscriber       │
	│       │                     │                            │
	│       ▼                     ▼                            │
	│  Subscriber 1           Subscriber 2  ...                │
	└──────────────────────────────────────────────────────────┘

Publish never blocks on a slow subscriber: broadcast is best-effort per
subscriber channel, so a subscriber that stops draining its channel
loses events rather than stalling the run.

# Event types

Task events: task.created, task.discovering, task.fetching,
task.partial, task.complete, task.failed — one type per TaskStatus;
no component publishes them (see Integration points).

Run events: run.started, run.done, run.cancelled — emitted by the
Coordinator at the start and end of Run.

# Integration points

  - pkg/coordinator: the only publisher of run.* events; owns the
    Broker's lifecycle (Start/Stop)
  - pkg/discoverer, pkg/executor, pkg/reconciler: could publish task.*
    events for finer-grained progress; currently the Coordinator's
    phase-level events are the wired surface
  - cmd/baliza: Coordinator.Subscribe() exposes a channel a future CLI
    `--watch` mode could print from
*/
package events
