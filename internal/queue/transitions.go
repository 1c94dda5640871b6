package queue

// transitions lists the statuses reachable from each status. Self transitions
// are always allowed so progress updates can be recorded without a state change.
var transitions = map[Status][]Status{
	StatusPending:      {StatusTransferring, StatusCancelled, StatusFailed},
	StatusTransferring: {StatusPaused, StatusTransferred, StatusFailed, StatusCancelled},
	StatusPaused:       {StatusTransferring, StatusTransferred, StatusFailed, StatusCancelled},
	StatusTransferred:  {StatusProcessing, StatusTranscribing, StatusAnalyzing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing:   {StatusTranscribing, StatusAnalyzing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusTranscribing: {StatusAnalyzing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusAnalyzing:    {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:       {StatusTransferring},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the task to a new status when the transition table allows it.
func (t *Task) Transition(to Status, op string) error {
	if !CanTransition(t.Status, to) {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: to, Op: op}
	}
	t.Status = to
	return nil
}
