package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"callpipe/internal/logging"
	"callpipe/internal/queue"
	"callpipe/internal/services"
	"callpipe/internal/transfer"
)

// launch starts the background work for one attempt. m.mu must be held.
func (m *Manager) launch(task queue.Task) {
	run := &taskRun{
		attempt: task.Attempt,
		channel: transfer.NewChannel(transfer.Options{
			Uploader:  m.uploader,
			Limiter:   m.limiter,
			ChunkSize: m.chunkSize,
			Clock:     m.now,
		}),
	}
	if old := m.runs[task.ID]; old != nil {
		old.stop()
	}
	m.runs[task.ID] = run
	m.wg.Add(1)
	go m.runTask(m.baseCtx, run, task)
}

func (m *Manager) runTask(base context.Context, run *taskRun, task queue.Task) {
	defer m.wg.Done()
	defer m.releaseRun(task.ID, run)

	ctx := services.WithTaskID(base, task.ID)
	ctx = services.WithAttempt(ctx, run.attempt)
	ctx = services.WithStage(ctx, "transfer")
	logger := logging.WithContext(ctx, m.logger)

	logger.Info("transfer started",
		zap.String("artifact", task.Artifact.Name),
		zap.Int64("total_bytes", task.TotalBytes),
		zap.String("destination", task.Settings.Destination),
	)

	sampler := logging.NewProgressSampler(10)
	outcome := run.channel.Run(base, transfer.Request{
		Artifact:    task.Artifact,
		Destination: task.Settings.Destination,
		Settings:    task.Settings,
	}, func(p transfer.Progress) {
		updated, err := m.applyTransferProgress(task.ID, run.attempt, p)
		if err == nil && sampler.Allow("transfer", updated.ProgressPercent) {
			logger.Debug("transfer progress",
				zap.Int64("bytes_sent", p.BytesSent),
				zap.Int64("total_bytes", p.TotalBytes),
				zap.Float64("percent", updated.ProgressPercent),
			)
		}
	})

	remoteID, handoff := m.finishTransfer(ctx, logger, task.ID, run.attempt, outcome)
	if !handoff {
		return
	}

	pollCtx, ok := m.beginPolling(base, task.ID, run)
	if !ok {
		return
	}
	pollCtx = services.WithStage(services.WithAttempt(services.WithTaskID(pollCtx, task.ID), run.attempt), "poll")
	m.pollProcessing(pollCtx, task.ID, run.attempt, remoteID)
}

func (m *Manager) applyTransferProgress(id string, attempt int, p transfer.Progress) (queue.Task, error) {
	return m.update(id, func(t *queue.Task) error {
		if t.Attempt != attempt {
			return errStale
		}
		switch t.Status {
		case queue.StatusTransferring:
			t.ApplyTransferProgress(p.BytesSent, p.Timestamp)
		case queue.StatusPaused:
			t.ApplyTransferProgress(p.BytesSent, p.Timestamp)
			t.ETA = nil
		default:
			return errStale
		}
		return nil
	})
}

// finishTransfer records the channel outcome. It returns the remote id and
// true when the task was handed over for remote processing.
func (m *Manager) finishTransfer(ctx context.Context, logger *zap.Logger, id string, attempt int, outcome transfer.Outcome) (string, bool) {
	switch outcome.Kind {
	case transfer.OutcomeSuccess:
		task, err := m.update(id, func(t *queue.Task) error {
			if t.Attempt != attempt {
				return errStale
			}
			if err := t.Transition(queue.StatusTransferred, "complete transfer"); err != nil {
				return errStale
			}
			t.TransferredBytes = t.TotalBytes
			t.RemoteArtifactID = outcome.RemoteID
			t.ETA = nil
			return nil
		})
		if err != nil {
			m.logDropped(logger, "transfer success", err)
			return "", false
		}
		logger.Info("transfer completed", zap.String("remote_artifact_id", outcome.RemoteID))

		if !task.Settings.AutoProcess {
			if _, err := m.update(id, func(t *queue.Task) error {
				if t.Attempt != attempt || t.Transition(queue.StatusCompleted, "complete") != nil {
					return errStale
				}
				t.SetCompleted()
				return nil
			}); err != nil {
				m.logDropped(logger, "completion", err)
			}
			return "", false
		}
		return outcome.RemoteID, true

	case transfer.OutcomeCancelled:
		if _, err := m.update(id, func(t *queue.Task) error {
			if t.Attempt != attempt || t.IsTerminal() {
				return errStale
			}
			t.SetCancelled()
			return nil
		}); err != nil {
			m.logDropped(logger, "transfer cancellation", err)
		}
		logger.Info("transfer cancelled")
		return "", false

	default:
		m.failTask(ctx, logger, id, attempt, queue.FailureTransfer, outcome.Reason, outcome.Err)
		return "", false
	}
}

// beginPolling moves the task to Processing and registers the poll
// cancellation. Progress is per phase: it restarts at 0 for remote
// processing, with TransferredBytes still recording the finished upload.
// It fails when the task was cancelled or cleared meanwhile.
func (m *Manager) beginPolling(base context.Context, id string, run *taskRun) (context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[id] != run {
		return nil, false
	}
	if _, err := m.update(id, func(t *queue.Task) error {
		if t.Attempt != run.attempt || t.Transition(queue.StatusProcessing, "process") != nil {
			return errStale
		}
		t.InitProgress(m.now())
		return nil
	}); err != nil {
		return nil, false
	}
	pollCtx, stop := context.WithCancel(base)
	run.channel = nil
	run.stopPoll = stop
	return pollCtx, true
}

func (m *Manager) failTask(ctx context.Context, logger *zap.Logger, id string, attempt int, kind queue.FailureKind, reason string, cause error) {
	task, err := m.update(id, func(t *queue.Task) error {
		if t.Attempt != attempt || t.Transition(queue.StatusFailed, "fail") != nil {
			return errStale
		}
		t.SetFailed(kind, reason)
		return nil
	})
	if err != nil {
		m.logDropped(logger, "failure", err)
		return
	}
	if errors.Is(cause, context.Canceled) && ctx.Err() != nil {
		logger.Info("task interrupted by shutdown", zap.String("reason", task.ErrorMessage))
		return
	}
	fields := []zap.Field{
		zap.String("failure_kind", string(kind)),
		zap.String("error_message", task.ErrorMessage),
		zap.String(logging.FieldErrorHint, failureHint(kind, cause)),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	logging.ErrorWithContext(logger, "task failed", "task_failed", fields...)
}

func failureHint(kind queue.FailureKind, cause error) string {
	if cause != nil {
		return services.ErrorHint(cause)
	}
	if kind == queue.FailureProcessing {
		return "the remote pipeline rejected the recording; submit it again after checking the file"
	}
	return "retry the task"
}

func (m *Manager) logDropped(logger *zap.Logger, what string, err error) {
	if errors.Is(err, errStale) || errors.Is(err, queue.ErrTaskNotFound) {
		logger.Debug("dropped late update", zap.String("update", what), zap.Error(err))
		return
	}
	logger.Warn("update failed", zap.String("update", what), zap.Error(err))
}

func (m *Manager) releaseRun(id string, run *taskRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[id] == run {
		run.stop()
		delete(m.runs, id)
	}
}
