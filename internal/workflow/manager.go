package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"callpipe/internal/config"
	"callpipe/internal/logging"
	"callpipe/internal/queue"
	"callpipe/internal/services/processing"
	"callpipe/internal/services/storage"
	"callpipe/internal/transfer"
)

// DestinationResolver confirms a destination exists before a batch is accepted.
type DestinationResolver interface {
	CheckDestination(ctx context.Context, destination string) error
}

// PollTiming controls the processing status poller.
type PollTiming struct {
	InitialDelay time.Duration
	Interval     time.Duration
	QueryTimeout time.Duration
	MaxFailures  int
}

// Manager orchestrates uploads and remote processing for submitted artifacts.
type Manager struct {
	registry  *queue.Registry
	uploader  storage.Uploader
	status    processing.StatusSource
	resolver  DestinationResolver
	logger    *zap.Logger
	limiter   *semaphore.Weighted
	chunkSize int
	timing    PollTiming
	now       func() time.Time
	observers []Observer

	// mu serializes commands and guards the run table.
	mu      sync.Mutex
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
	runs    map[string]*taskRun
	wg      sync.WaitGroup

	batchMu         sync.Mutex
	finishedBatches map[string]struct{}
}

// taskRun is the background work owned by one attempt of one task.
type taskRun struct {
	attempt  int
	channel  *transfer.Channel
	stopPoll context.CancelFunc
}

func (r *taskRun) stop() {
	if r.channel != nil {
		r.channel.Cancel()
	}
	if r.stopPoll != nil {
		r.stopPoll()
	}
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithObserver registers an observer for task events.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithDestinationResolver enables the destination existence check in Submit.
func WithDestinationResolver(r DestinationResolver) ManagerOption {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithPollTiming overrides the poller cadence from config.
func WithPollTiming(t PollTiming) ManagerOption {
	return func(m *Manager) {
		m.timing = t
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}


// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, uploader storage.Uploader, status processing.StatusSource, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		registry: queue.NewRegistry(),
		uploader: uploader,
		status:   status,
		logger:   logging.NewComponentLogger(logger, "workflow-manager"),
		now:      time.Now,
		runs:     make(map[string]*taskRun),

		finishedBatches: make(map[string]struct{}),
	}
	if cfg != nil {
		if cfg.Storage.MaxConcurrentUploads > 0 {
			m.limiter = semaphore.NewWeighted(int64(cfg.Storage.MaxConcurrentUploads))
		}
		m.chunkSize = cfg.ChunkSize()
		m.timing = PollTiming{
			InitialDelay: cfg.InitialPollDelay(),
			Interval:     cfg.PollInterval(),
			QueryTimeout: cfg.QueryTimeout(),
			MaxFailures:  cfg.Processing.MaxConsecutiveFailures,
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.timing.MaxFailures <= 0 {
		m.timing.MaxFailures = 1
	}
	return m
}

// Start enables submissions. Background work is bound to ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow manager already running")
	}
	m.baseCtx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.logger.Info("workflow manager started",
		zap.Int("chunk_size", m.chunkSize),
		zap.Duration("poll_interval", m.timing.Interval),
		zap.Int("max_poll_failures", m.timing.MaxFailures),
	)
	return nil
}

// Stop cancels in-flight work and waits for every task goroutine to exit.
// Interrupted tasks end Failed with queue.DaemonStopReason.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.runs = make(map[string]*taskRun)
	m.mu.Unlock()
	m.logger.Info("workflow manager stopped")
}

// Running reports whether the manager accepts submissions.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Submit registers one task per artifact and starts their transfers. The
// destination is validated for the whole batch first; on failure no task is
// created.
func (m *Manager) Submit(ctx context.Context, artifacts []queue.Artifact, settings queue.Settings) ([]string, error) {
	if len(artifacts) == 0 {
		return nil, ErrNoArtifacts
	}
	settings.Destination = strings.TrimSpace(settings.Destination)
	if settings.Destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidDestination)
	}
	for i, artifact := range artifacts {
		if artifact.Source == nil || artifact.Size <= 0 || strings.TrimSpace(artifact.Name) == "" {
			return nil, fmt.Errorf("artifact %d (%s): name, size, and source are required", i, artifact.Name)
		}
	}
	if m.resolver != nil {
		if err := m.resolver.CheckDestination(ctx, settings.Destination); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDestination, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, ErrNotRunning
	}

	batchID := uuid.NewString()
	ids := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		task := queue.Task{
			ID:         uuid.NewString(),
			BatchID:    batchID,
			Artifact:   artifact,
			Status:     queue.StatusPending,
			TotalBytes: artifact.Size,
			Settings:   settings,
			Attempt:    1,
			CreatedAt:  m.now(),
		}
		stored, err := m.registry.Put(task)
		if err != nil {
			return ids, fmt.Errorf("register task: %w", err)
		}
		m.publishTask(stored)
		ids = append(ids, stored.ID)

		if artifact.Size > queue.LargeFileThreshold {
			logging.WarnWithContext(m.logger, "large artifact submitted", "large_artifact",
				zap.String(logging.FieldTaskID, stored.ID),
				zap.String("artifact", artifact.Name),
				zap.Int64("size_bytes", artifact.Size),
				zap.String(logging.FieldErrorHint, "split long recordings to shorten uploads"),
				zap.String(logging.FieldImpact, "upload may take a long time"),
			)
		}

		started, err := m.update(stored.ID, func(t *queue.Task) error {
			if err := t.Transition(queue.StatusTransferring, "start"); err != nil {
				return err
			}
			t.InitProgress(m.now())
			return nil
		})
		if err != nil {
			continue
		}
		m.launch(started)
	}
	m.logger.Info("batch submitted",
		zap.String("batch_id", batchID),
		zap.Int("artifacts", len(ids)),
		zap.String("destination", settings.Destination),
		zap.Bool("auto_process", settings.AutoProcess),
	)
	return ids, nil
}

// update applies mutate and publishes the resulting snapshot.
func (m *Manager) update(id string, mutate func(*queue.Task) error) (queue.Task, error) {
	task, err := m.registry.Update(id, mutate)
	if err != nil {
		return task, err
	}
	m.publishTask(task)
	return task, nil
}

// Get returns a snapshot of one task.
func (m *Manager) Get(id string) (queue.Task, bool) {
	return m.registry.Get(id)
}

// List returns snapshots of all tasks in submission order.
func (m *Manager) List() []queue.Task {
	return m.registry.List()
}

// Counts returns the number of tasks per status.
func (m *Manager) Counts() map[queue.Status]int {
	return m.registry.Counts()
}

// Summary aggregates the current tasks.
func (m *Manager) Summary() queue.Summary {
	return queue.Summarize(m.registry.List())
}

// GlobalProgress is the mean progress across all tasks, or 0 with none.
func (m *Manager) GlobalProgress() float64 {
	return GlobalProgress(m.registry.List())
}

// GlobalProgress averages ProgressPercent over tasks.
func GlobalProgress(tasks []queue.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	var sum float64
	for _, task := range tasks {
		sum += task.ProgressPercent
	}
	return sum / float64(len(tasks))
}
