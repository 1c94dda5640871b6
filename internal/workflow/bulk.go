package workflow

import (
	"go.uber.org/zap"

	"callpipe/internal/logging"
	"callpipe/internal/queue"
)

// ClearCompleted removes every Completed task and returns how many were removed.
// Tasks in flight are untouched.
func (m *Manager) ClearCompleted() int {
	removed := m.registry.RemoveWhere(func(t queue.Task) bool {
		return t.Status == queue.StatusCompleted
	})
	m.publishRemoved(removed)
	if len(removed) > 0 {
		m.logger.Info("cleared completed tasks", zap.Int("removed", len(removed)), zap.Int("remaining", m.registry.Len()))
	}
	return len(removed)
}

// ClearAll cancels every non-terminal task, stopping its background work, and
// then removes all tasks. Late updates for removed ids are dropped.
func (m *Manager) ClearAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, task := range m.registry.List() {
		if task.IsTerminal() {
			continue
		}
		if _, err := m.cancelLocked(task.ID); err != nil {
			m.logger.Debug("cancel before clear failed", zap.String(logging.FieldTaskID, task.ID), zap.Error(err))
		}
	}
	for id, run := range m.runs {
		run.stop()
		delete(m.runs, id)
	}
	removed := m.registry.RemoveWhere(func(queue.Task) bool { return true })
	m.publishRemoved(removed)
	m.logger.Info("cleared all tasks", zap.Int("removed", len(removed)))
	return len(removed)
}
