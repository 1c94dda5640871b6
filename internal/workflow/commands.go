package workflow

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"callpipe/internal/logging"
	"callpipe/internal/queue"
)

// Pause halts a transferring task. Bytes already sent are kept.
func (m *Manager) Pause(id string) (queue.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.update(id, func(t *queue.Task) error {
		if t.Status != queue.StatusTransferring {
			return &queue.TransitionError{TaskID: t.ID, From: t.Status, To: queue.StatusPaused, Op: "pause"}
		}
		t.Status = queue.StatusPaused
		t.ETA = nil
		return nil
	})
	if err != nil {
		return task, err
	}
	slotFreed := false
	if run := m.runs[id]; run != nil && run.channel != nil {
		run.channel.Pause()
		slotFreed = !run.channel.HoldsSlot()
	}
	m.logger.Info("task paused",
		zap.String(logging.FieldTaskID, id),
		zap.Int64("transferred_bytes", task.TransferredBytes),
		zap.Bool("upload_slot_freed", slotFreed),
	)
	return task, nil
}

// Resume continues a paused transfer on the same stream.
func (m *Manager) Resume(id string) (queue.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.update(id, func(t *queue.Task) error {
		if t.Status != queue.StatusPaused {
			return &queue.TransitionError{TaskID: t.ID, From: t.Status, To: queue.StatusTransferring, Op: "resume"}
		}
		t.Status = queue.StatusTransferring
		return nil
	})
	if err != nil {
		return task, err
	}
	if run := m.runs[id]; run != nil && run.channel != nil {
		run.channel.Resume()
	}
	m.logger.Info("task resumed", zap.String(logging.FieldTaskID, id))
	return task, nil
}

// Cancel stops a task's transfer or polling and freezes it in Cancelled.
// Cancelling a terminal task is a no-op that returns its current snapshot.
func (m *Manager) Cancel(id string) (queue.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelLocked(id)
}

func (m *Manager) cancelLocked(id string) (queue.Task, error) {
	task, err := m.update(id, func(t *queue.Task) error {
		if t.IsTerminal() {
			return errNoop
		}
		if err := t.Transition(queue.StatusCancelled, "cancel"); err != nil {
			return err
		}
		t.SetCancelled()
		return nil
	})
	if errors.Is(err, errNoop) {
		return task, nil
	}
	if err != nil {
		return task, err
	}
	if run := m.runs[id]; run != nil {
		run.stop()
		delete(m.runs, id)
	}
	m.logger.Info("task cancelled", zap.String(logging.FieldTaskID, id))
	return task, nil
}

// Retry restarts a task whose transfer failed. Progress, bytes, and the error
// are reset and a fresh transfer channel is started.
func (m *Manager) Retry(id string) (queue.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return queue.Task{}, ErrNotRunning
	}

	task, err := m.update(id, func(t *queue.Task) error {
		if t.Status != queue.StatusFailed {
			return &queue.TransitionError{TaskID: t.ID, From: t.Status, To: queue.StatusTransferring, Op: "retry"}
		}
		if t.FailureKind == queue.FailureProcessing {
			return fmt.Errorf("%w: remote processing failed; submit the file again", ErrNotRetryable)
		}
		t.ResetForRetry(m.now())
		return t.Transition(queue.StatusTransferring, "retry")
	})
	if err != nil {
		return task, err
	}
	m.reopenBatch(task.BatchID)
	m.publish(Event{Kind: EventTaskRetried, Task: task, BatchID: task.BatchID})
	m.launch(task)
	m.logger.Info("task retried", zap.String(logging.FieldTaskID, id), zap.Int(logging.FieldAttempt, task.Attempt))
	return task, nil
}
