// Package daemon coordinates the long-running Callpipe process.
//
// It wires configuration, the workflow manager, the history journal, metrics,
// notifications, and the HTTP API into a single lifecycle with flock-based
// locking to prevent multiple instances. Startup runs preflight checks:
// unusable state or log directories abort the start, unreachable endpoints
// only warn because uploads retry on their own.
//
// Keep orchestration logic here: task semantics live in the workflow package
// while the daemon focuses on startup, shutdown, and high level coordination.
package daemon
