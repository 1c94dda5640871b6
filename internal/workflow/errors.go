package workflow

import (
	"errors"

	"callpipe/internal/queue"
)

var (
	// ErrInvalidDestination rejects a whole batch before any task is created.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrNoArtifacts rejects an empty submission.
	ErrNoArtifacts = errors.New("no artifacts submitted")
	// ErrNotRetryable is returned when retrying a task whose remote processing
	// failed; such artifacts must be submitted again as a new task.
	ErrNotRetryable = errors.New("task is not retryable")
	// ErrNotRunning is returned by Submit and Retry when the manager is stopped.
	ErrNotRunning = errors.New("workflow manager is not running")

	ErrInvalidTransition = queue.ErrInvalidTransition
	ErrTaskNotFound      = queue.ErrTaskNotFound
)

// errStale marks updates from a superseded attempt or a task that already
// left the state the update applies to. They are dropped silently.
var errStale = errors.New("stale update")

// errNoop marks commands that leave an already-terminal task unchanged.
var errNoop = errors.New("no change")
