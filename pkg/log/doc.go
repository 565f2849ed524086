/*
Package log provides structured logging for crater using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("registry")                │          │
	│  │  - WithAgent("agent-1")                     │          │
	│  │  - WithExperiment("rustc-bump")              │          │
	│  │  - WithTaskID("task-42")                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │  JSON:    {"level":"info","experiment":... } │          │
	│  │  Console: 2024-01-02T10:30:00Z INF ...       │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.WithComponent("coordinator").Info().Msg("coordinator starting")

	expLog := log.WithExperiment("rustc-bump")
	expLog.Info().Int("packages", len(exp.Packages)).Msg("experiment queued")

	taskLog := log.WithTaskID(taskID)
	taskLog.Error().Err(err).Msg("task failed")

pkg/logcapture builds on the same child-logger mechanism: attaching a
capturing hook to a per-task child logger is how task output is captured
without threading an io.Writer through every call site.

# Integration Points

  - pkg/registry: logs experiment lifecycle transitions
  - pkg/worker: logs task dispatch and execution
  - pkg/agentapi / pkg/agentclient: logs protocol requests and errors
  - pkg/diskwatch: logs free-space samples and purge cycles
  - pkg/logcapture: hooks into child loggers to capture per-task output

# Security

Never log secrets or agent tokens; use structured fields, never string
concatenation, for any value that originates outside the process.
*/
package log
