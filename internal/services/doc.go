// Package services defines shared utilities consumed by the orchestrator and
// the remote endpoint clients.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, attempts, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     from the storage and processing endpoints.
//
// The storage and processing subpackages hold the HTTP clients themselves.
package services
