// Package logging assembles structured zap loggers and helpers used across
// callpipe services.
//
// It owns the console/JSON encoder configuration, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestrator code can tag log
// lines with task IDs, stages, and correlation IDs automatically. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled zap setup so new components emit
// data with the same shape and routing as the rest of the system.
package logging
