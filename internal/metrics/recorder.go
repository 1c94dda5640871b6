package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"callpipe/internal/queue"
	"callpipe/internal/workflow"
)

const meterName = "callpipe"

// Recorder holds the task metric instruments.
type Recorder struct {
	TasksSubmitted   metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	TasksCancelled   metric.Int64Counter
	TasksRetried     metric.Int64Counter
	BytesTransferred metric.Int64Counter
	TaskDuration     metric.Float64Histogram

	meter metric.Meter
}

// NewRecorder creates all instruments on provider, or on the global provider
// when provider is nil.
func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	var meter metric.Meter
	if provider == nil {
		meter = otel.Meter(meterName)
	} else {
		meter = provider.Meter(meterName)
	}
	r := &Recorder{meter: meter}
	var err error

	r.TasksSubmitted, err = meter.Int64Counter("callpipe.tasks.submitted",
		metric.WithDescription("Number of tasks submitted"))
	if err != nil {
		return nil, err
	}

	r.TasksCompleted, err = meter.Int64Counter("callpipe.tasks.completed",
		metric.WithDescription("Number of tasks completed"))
	if err != nil {
		return nil, err
	}

	r.TasksFailed, err = meter.Int64Counter("callpipe.tasks.failed",
		metric.WithDescription("Number of task attempts that failed"))
	if err != nil {
		return nil, err
	}

	r.TasksCancelled, err = meter.Int64Counter("callpipe.tasks.cancelled",
		metric.WithDescription("Number of tasks cancelled"))
	if err != nil {
		return nil, err
	}

	r.TasksRetried, err = meter.Int64Counter("callpipe.tasks.retried",
		metric.WithDescription("Number of retry attempts started"))
	if err != nil {
		return nil, err
	}

	r.BytesTransferred, err = meter.Int64Counter("callpipe.transfer.bytes",
		metric.WithDescription("Artifact bytes accepted by storage"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	r.TaskDuration, err = meter.Float64Histogram("callpipe.task.duration_seconds",
		metric.WithDescription("Time from submission to a terminal status"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return r, nil
}

// RegisterSummary publishes the live task summary as gauges. summary is
// called on every collection.
func (r *Recorder) RegisterSummary(summary func() queue.Summary) error {
	_, err := r.meter.Int64ObservableGauge("callpipe.tasks.current",
		metric.WithDescription("Tasks currently held by the daemon, by state"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			s := summary()
			o.Observe(int64(s.Active), metric.WithAttributes(attribute.String("state", "active")))
			o.Observe(int64(s.Completed), metric.WithAttributes(attribute.String("state", "completed")))
			o.Observe(int64(s.Failed), metric.WithAttributes(attribute.String("state", "failed")))
			o.Observe(int64(s.Cancelled), metric.WithAttributes(attribute.String("state", "cancelled")))
			return nil
		}))
	return err
}

// Observe implements workflow.Observer.
func (r *Recorder) Observe(ev workflow.Event) {
	ctx := context.Background()
	task := ev.Task
	dest := metric.WithAttributes(attribute.String("destination", task.Settings.Destination))

	switch ev.Kind {
	case workflow.EventTaskRetried:
		r.TasksRetried.Add(ctx, 1, dest)
		return
	case workflow.EventTaskUpdated:
	default:
		return
	}

	switch task.Status {
	case queue.StatusPending:
		r.TasksSubmitted.Add(ctx, 1, dest)
	case queue.StatusTransferred:
		r.BytesTransferred.Add(ctx, task.TotalBytes, dest)
	case queue.StatusCompleted:
		r.TasksCompleted.Add(ctx, 1, dest)
		r.recordDuration(ctx, task)
	case queue.StatusFailed:
		r.TasksFailed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("destination", task.Settings.Destination),
			attribute.String("failure_kind", string(task.FailureKind)),
		))
		r.recordDuration(ctx, task)
	case queue.StatusCancelled:
		r.TasksCancelled.Add(ctx, 1, dest)
	}
}

func (r *Recorder) recordDuration(ctx context.Context, task queue.Task) {
	if task.CreatedAt.IsZero() || task.UpdatedAt.Before(task.CreatedAt) {
		return
	}
	r.TaskDuration.Record(ctx, task.UpdatedAt.Sub(task.CreatedAt).Seconds(),
		metric.WithAttributes(attribute.String("status", string(task.Status))))
}
