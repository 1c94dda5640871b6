// Package api defines wire-format types, converters, and the HTTP client for
// the daemon's JSON API. It translates internal queue models into
// transport-friendly DTOs so the CLI and other consumers can render tasks
// without coupling to internal types.
//
// # Key Types
//
// Task: transport representation of a task with progress, ETA, settings, and
// failure details.
//
// ProgressResponse: global progress plus the task summary and per-status counts.
//
// DaemonStatus: runtime information including preflight checks and metrics.
//
// EventMessage: envelope for live updates streamed over the websocket.
//
// # Converters
//
// FromTask: queue.Task -> Task with ETA in seconds and RFC3339 timestamps.
//
// FromEntry: journal.Entry -> HistoryEntry.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status,
// queue.FailureKind) are exposed as lowercase strings. Timestamps use RFC3339
// with milliseconds. Version increases with every change to a task so
// consumers of the event stream can discard out-of-order updates.
package api
