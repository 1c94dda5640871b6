package notifications

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"callpipe/internal/logging"
	"callpipe/internal/queue"
	"callpipe/internal/workflow"
)

const publishTimeout = 15 * time.Second

// Notifier forwards task failures and finished batches to a Service.
type Notifier struct {
	service Service
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewNotifier wraps service as a workflow observer.
func NewNotifier(service Service, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{
		service: service,
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

// Observe implements workflow.Observer.
func (n *Notifier) Observe(ev workflow.Event) {
	switch ev.Kind {
	case workflow.EventTaskUpdated:
		task := ev.Task
		// Shutdown failures are expected and would page once per in-flight task.
		if task.Status != queue.StatusFailed || task.ErrorMessage == queue.DaemonStopReason {
			return
		}
		stage := "upload"
		if task.FailureKind == queue.FailureProcessing {
			stage = "processing"
		}
		n.publish(EventTaskFailed, Payload{
			"task_id":  task.ID,
			"artifact": task.Artifact.Name,
			"error":    task.ErrorMessage,
			"stage":    stage,
		})
	case workflow.EventBatchFinished:
		n.publish(EventBatchCompleted, Payload{
			"batch_id":    ev.BatchID,
			"completed":   ev.Summary.Completed,
			"failed":      ev.Summary.Failed,
			"cancelled":   ev.Summary.Cancelled,
			"destination": ev.Task.Settings.Destination,
		})
	}
}

func (n *Notifier) publish(event Event, payload Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := n.service.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(n.logger, "notification failed", "notification_failed",
				zap.String("event", string(event)),
				zap.Error(err),
				zap.String(logging.FieldImpact, "notification was not delivered"),
				zap.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			)
			return
		}
		n.logger.Debug("notification sent", zap.String("event", string(event)))
	}()
}

// Close waits for in-flight sends. Later events are ignored.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}
