// Package workflow drives uploaded recordings from submission to a terminal
// state.
//
// The Manager accepts a batch of artifacts, registers one Task per artifact,
// and runs each task in its own goroutine: a transfer.Channel streams the
// bytes to storage, then, when auto-processing was requested, the poller
// follows the remote pipeline (processing, transcribing, analyzing) until it
// reports completion or failure. User commands (pause, resume, cancel, retry)
// and bulk cleanup are applied through the queue.Registry so every change to
// one task is serialized and sibling tasks are never blocked.
//
// Observers receive a snapshot after every change. Each snapshot carries the
// task's Version so subscribers can discard out-of-order deliveries.
package workflow
