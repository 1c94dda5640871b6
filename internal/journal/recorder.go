package journal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"callpipe/internal/logging"
	"callpipe/internal/queue"
	"callpipe/internal/workflow"
)

const (
	recorderBuffer     = 256
	recordWriteTimeout = 5 * time.Second
)

// Recorder writes terminal task snapshots to a Store from a background worker.
type Recorder struct {
	store  *Store
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	tasks  chan queue.Task
	done   chan struct{}
}

// NewRecorder starts the background writer. Call Close to drain it.
func NewRecorder(store *Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Recorder{
		store:  store,
		logger: logging.NewComponentLogger(logger, "journal"),
		tasks:  make(chan queue.Task, recorderBuffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Observe implements workflow.Observer.
func (r *Recorder) Observe(ev workflow.Event) {
	if ev.Kind != workflow.EventTaskUpdated || !ev.Task.IsTerminal() {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.tasks <- ev.Task:
	default:
		logging.WarnWithContext(r.logger, "history write dropped", "history_dropped",
			zap.String(logging.FieldTaskID, ev.Task.ID),
			zap.String("status", string(ev.Task.Status)),
			zap.String(logging.FieldImpact, "task will be missing from history"),
			zap.String(logging.FieldErrorHint, "check disk latency of the state directory"),
		)
	}
}

// Close stops accepting events and waits for pending writes.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) loop() {
	defer close(r.done)
	for task := range r.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), recordWriteTimeout)
		err := r.store.Record(ctx, task)
		cancel()
		if err != nil {
			logging.WarnWithContext(r.logger, "history write failed", "history_write_failed",
				zap.String(logging.FieldTaskID, task.ID),
				zap.Error(err),
				zap.String(logging.FieldImpact, "task will be missing from history"),
			)
			continue
		}
		r.logger.Debug("history recorded",
			zap.String(logging.FieldTaskID, task.ID),
			zap.Int(logging.FieldAttempt, task.Attempt),
			zap.String("status", string(task.Status)),
		)
	}
}
