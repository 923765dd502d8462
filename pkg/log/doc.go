/*
Package log provides structured logging for the Core Extraction Engine
using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper
functions for common logging patterns (a task, a run, an endpoint).
All logs include timestamps and support filtering by severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("discoverer")              │          │
	│  │  - WithTaskID("task-abc123")                │          │
	│  │  - WithEndpoint("contratos")                │          │
	│  │  - WithRunID("run-xyz789")                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "discoverer",               │          │
	│  │    "time": "2026-08-01T10:30:00Z",         │          │
	│  │    "message": "page 1 discovered"           │          │
	│  │  }                                           │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init(), before any component starts
  - Thread-safe concurrent writes

Component Loggers:
  - WithComponent returns a logger tagged with a "component" field, one
    per package (planner, discoverer, executor, reconciler, coordinator)
  - WithTaskID, WithEndpoint, WithRunID attach the matching field for
    per-request and per-task log correlation

# Integration points

  - pkg/coordinator: WithComponent("coordinator"), logs every phase transition
  - pkg/discoverer, pkg/executor, pkg/reconciler: one WithComponent logger each
  - pkg/httpclient: logs retries after transport errors; circuit state
    changes are reported only through pkg/metrics
  - cmd/baliza: cobra.OnInitialize(initLogging) wires --log-level/--log-json
    into log.Init before any subcommand runs
*/
package log
