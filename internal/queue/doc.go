// Package queue holds the in-memory task model for uploaded recordings and the
// registry that tracks them.
//
// A Task records one artifact's whole lifecycle: the byte transfer to the
// storage endpoint followed by remote processing (transcription, analysis).
// Status changes follow the transition table in transitions.go; progress
// helpers on Task keep percentages monotonic and reserve 100% for confirmed
// completion.
//
// The Registry is the only shared mutable state in the orchestrator. Updates
// are serialized per task id while different ids update in parallel, and a
// removed id stays absent for any late update.
package queue
