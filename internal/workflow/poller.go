package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"callpipe/internal/logging"
	"callpipe/internal/queue"
	"callpipe/internal/services"
	"callpipe/internal/services/processing"
)

// remoteStages maps endpoint stage names onto task statuses.
var remoteStages = map[string]queue.Status{
	processing.StageQueued:       queue.StatusProcessing,
	"pending":                    queue.StatusProcessing,
	"uploaded":                   queue.StatusProcessing,
	processing.StageProcessing:   queue.StatusProcessing,
	processing.StageTranscribing: queue.StatusTranscribing,
	processing.StageAnalyzing:    queue.StatusAnalyzing,
	processing.StageCompleted:    queue.StatusCompleted,
	"complete":                   queue.StatusCompleted,
	"done":                       queue.StatusCompleted,
	processing.StageFailed:       queue.StatusFailed,
	"error":                      queue.StatusFailed,
}

// remoteRank orders the remote phases so a stale report cannot move a task backward.
var remoteRank = map[queue.Status]int{
	queue.StatusTransferred:  0,
	queue.StatusProcessing:   1,
	queue.StatusTranscribing: 2,
	queue.StatusAnalyzing:    3,
}

// MapRemoteStage converts an endpoint stage name to a task status.
func MapRemoteStage(stage string) (queue.Status, bool) {
	status, ok := remoteStages[strings.ToLower(strings.TrimSpace(stage))]
	return status, ok
}

// pollProcessing queries remote status until the task is terminal, the poll
// is cancelled, or consecutive query failures reach the cap. Exactly one
// query is in flight at a time because the loop is sequential.
func (m *Manager) pollProcessing(ctx context.Context, id string, attempt int, remoteID string) {
	logger := logging.WithContext(ctx, m.logger).With(zap.String("remote_artifact_id", remoteID))
	logger.Info("processing poll started", zap.Duration("initial_delay", m.timing.InitialDelay))

	failures := 0
	wait := m.timing.InitialDelay
	for {
		if !m.sleep(ctx, wait) {
			m.stopPolling(ctx, logger, id, attempt)
			return
		}
		wait = m.timing.Interval

		task, ok := m.registry.Get(id)
		if !ok || task.Attempt != attempt || task.IsTerminal() {
			logger.Debug("processing poll stopped", zap.Bool("present", ok))
			return
		}

		status, err := m.queryStatus(ctx, remoteID)
		if ctx.Err() != nil {
			m.stopPolling(ctx, logger, id, attempt)
			return
		}
		if err != nil {
			failures++
			if failures >= m.timing.MaxFailures {
				reason := fmt.Sprintf("processing status unavailable after %d attempts: %v", failures, err)
				m.failTask(ctx, logger, id, attempt, queue.FailureProcessing, reason, err)
				return
			}
			logging.WarnWithContext(logger, "processing status query failed", "poll_retry",
				zap.Int("consecutive_failures", failures),
				zap.Int("max_failures", m.timing.MaxFailures),
				zap.Bool("temporary", services.Temporary(err)),
				zap.Error(err),
				zap.String(logging.FieldImpact, "status will be queried again at the next interval"),
			)
			continue
		}
		failures = 0

		if done := m.applyRemoteStatus(ctx, logger, id, attempt, status); done {
			return
		}
	}
}

func (m *Manager) queryStatus(ctx context.Context, remoteID string) (processing.Status, error) {
	if m.status == nil {
		return processing.Status{}, fmt.Errorf("no processing status source configured")
	}
	qctx := ctx
	if m.timing.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, m.timing.QueryTimeout)
		defer cancel()
	}
	return m.status.GetStatus(qctx, remoteID)
}

// applyRemoteStatus folds one status report into the task. It returns true
// when polling should stop.
func (m *Manager) applyRemoteStatus(ctx context.Context, logger *zap.Logger, id string, attempt int, status processing.Status) bool {
	mapped, known := MapRemoteStage(status.Stage)
	if !known {
		logger.Debug("unknown remote stage", zap.String("remote_stage", status.Stage))
	}
	if known && mapped == queue.StatusFailed {
		reason := strings.TrimSpace(status.Error)
		if reason == "" {
			reason = "remote processing failed"
		}
		m.failTask(ctx, logger, id, attempt, queue.FailureProcessing, reason, nil)
		return true
	}

	task, err := m.update(id, func(t *queue.Task) error {
		if t.Attempt != attempt || t.IsTerminal() || !t.Status.IsRemote() {
			return errStale
		}
		if known && mapped == queue.StatusCompleted {
			if err := t.Transition(queue.StatusCompleted, "complete"); err != nil {
				return errStale
			}
			t.SetCompleted()
			return nil
		}
		prevStatus, prevPercent := t.Status, t.ProgressPercent
		if known && remoteRank[mapped] > remoteRank[t.Status] {
			if err := t.Transition(mapped, "advance"); err != nil {
				return errStale
			}
		}
		if status.Progress != nil {
			t.ApplyRemoteProgress(*status.Progress, m.now())
		}
		if t.Status == prevStatus && t.ProgressPercent == prevPercent {
			return errNoop
		}
		return nil
	})
	if errors.Is(err, errNoop) {
		return false
	}
	if err != nil {
		m.logDropped(logger, "remote status", err)
		return true
	}
	if task.Status == queue.StatusCompleted {
		logger.Info("processing completed")
		return true
	}
	logger.Debug("processing status",
		zap.String("remote_stage", status.Stage),
		zap.String("status", string(task.Status)),
		zap.Float64("percent", task.ProgressPercent),
	)
	return false
}

// stopPolling handles a cancelled poll context. A user cancel already froze
// the task; a shutdown fails it so the stop is visible in history.
func (m *Manager) stopPolling(ctx context.Context, logger *zap.Logger, id string, attempt int) {
	if m.baseCtx == nil || m.baseCtx.Err() == nil {
		logger.Debug("processing poll cancelled")
		return
	}
	m.failTask(ctx, logger, id, attempt, queue.FailureProcessing, queue.DaemonStopReason, context.Canceled)
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
