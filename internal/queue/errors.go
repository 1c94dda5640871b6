package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned for ids that were never registered or were removed.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a command does not fit the task's current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrDuplicateTask is returned when a task id is registered twice.
	ErrDuplicateTask = errors.New("duplicate task")
)

// TransitionError describes a rejected status change. The task is left unchanged.
type TransitionError struct {
	TaskID string
	From   Status
	To     Status
	Op     string
}

func (e *TransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("task %s: cannot %s while %s", e.TaskID, e.Op, e.From)
	}
	return fmt.Sprintf("task %s: cannot move from %s to %s", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
