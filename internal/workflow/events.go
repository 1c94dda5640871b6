package workflow

import "callpipe/internal/queue"

// EventKind names a change published to observers.
type EventKind string

const (
	EventTaskUpdated   EventKind = "task.updated"
	EventTaskRemoved   EventKind = "task.removed"
	EventBatchFinished EventKind = "batch.finished"
	EventTaskRetried   EventKind = "task.retried"
)

// Event describes one change. For batch.finished, Summary covers the batch and
// Task is its last submitted member, which carries the shared settings.
type Event struct {
	Kind    EventKind
	Task    queue.Task
	BatchID string
	Summary queue.Summary
}

// Observer receives events synchronously from task goroutines and command
// callers, so implementations must return quickly and must not call back into
// the Manager.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f.
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}

func (m *Manager) publish(ev Event) {
	for _, o := range m.observers {
		o.Observe(ev)
	}
}

func (m *Manager) publishTask(task queue.Task) {
	m.publish(Event{Kind: EventTaskUpdated, Task: task, BatchID: task.BatchID})
	if task.IsTerminal() {
		m.checkBatch(task.BatchID)
	}
}

func (m *Manager) publishRemoved(tasks []queue.Task) {
	for _, task := range tasks {
		m.publish(Event{Kind: EventTaskRemoved, Task: task, BatchID: task.BatchID})
	}
}

// checkBatch publishes batch.finished once every remaining task of the batch
// is terminal.
func (m *Manager) checkBatch(batchID string) {
	if batchID == "" {
		return
	}
	var members []queue.Task
	for _, task := range m.registry.List() {
		if task.BatchID != batchID {
			continue
		}
		if !task.IsTerminal() {
			return
		}
		members = append(members, task)
	}
	if len(members) == 0 {
		return
	}
	m.batchMu.Lock()
	if _, done := m.finishedBatches[batchID]; done {
		m.batchMu.Unlock()
		return
	}
	m.finishedBatches[batchID] = struct{}{}
	m.batchMu.Unlock()

	m.publish(Event{
		Kind:    EventBatchFinished,
		Task:    members[len(members)-1],
		BatchID: batchID,
		Summary: queue.Summarize(members),
	})
}

func (m *Manager) reopenBatch(batchID string) {
	m.batchMu.Lock()
	delete(m.finishedBatches, batchID)
	m.batchMu.Unlock()
}
