package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"callpipe/internal/api"
	"callpipe/internal/config"
	"callpipe/internal/journal"
	"callpipe/internal/logging"
	"callpipe/internal/metrics"
	"callpipe/internal/notifications"
	"callpipe/internal/preflight"
	"callpipe/internal/queue"
	"callpipe/internal/services/processing"
	"callpipe/internal/services/storage"
	"callpipe/internal/workflow"
)

// historyRetention bounds how long finished attempts stay in the journal.
const historyRetention = 30 * 24 * time.Hour

// Dependencies overrides the remote services the daemon talks to. Nil fields
// are built from the configuration.
type Dependencies struct {
	Uploader      storage.Uploader
	Status        processing.StatusSource
	Resolver      workflow.DestinationResolver
	Notifications notifications.Service
	PollTiming    *workflow.PollTiming
}

// Daemon owns the workflow manager and every observer attached to it. A
// stopped daemon cannot be started again; build a new one instead.
type Daemon struct {
	cfg    *config.Config
	logger *zap.Logger

	manager   *workflow.Manager
	history   *journal.Store
	recorder  *journal.Recorder
	notifier  *notifications.Notifier
	notify    notifications.Service
	hub       *api.Hub
	collector *metrics.Collector
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	checks  []preflight.Result
	running atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	history, err := journal.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if history.Rebuilt() {
		logger.Info("history database rebuilt for new schema", zap.String("path", history.Path()))
	}

	collector := metrics.NewCollector("callpipe")
	metricsRecorder, err := metrics.NewRecorder(collector.MeterProvider())
	if err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if deps.Uploader == nil {
		client := storage.NewFromConfig(cfg)
		deps.Uploader = client
		if deps.Resolver == nil {
			deps.Resolver = client
		}
	}
	if deps.Status == nil {
		deps.Status = processing.NewFromConfig(cfg)
	}
	if deps.Notifications == nil {
		deps.Notifications = notifications.NewService(cfg)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		history:   history,
		recorder:  journal.NewRecorder(history, logger),
		notifier:  notifications.NewNotifier(deps.Notifications, logger),
		notify:    deps.Notifications,
		collector: collector,
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
	}
	d.hub = api.NewHub(logger, func() []queue.Task { return d.manager.List() })

	opts := []workflow.ManagerOption{
		workflow.WithObserver(d.hub),
		workflow.WithObserver(d.recorder),
		workflow.WithObserver(metricsRecorder),
		workflow.WithObserver(d.notifier),
	}
	if deps.Resolver != nil {
		opts = append(opts, workflow.WithDestinationResolver(deps.Resolver))
	}
	if deps.PollTiming != nil {
		opts = append(opts, workflow.WithPollTiming(*deps.PollTiming))
	}
	d.manager = workflow.NewManager(cfg, deps.Uploader, deps.Status, logger, opts...)

	if err := metricsRecorder.RegisterSummary(d.manager.Summary); err != nil {
		_ = history.Close()
		return nil, fmt.Errorf("register summary gauge: %w", err)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, starts the workflow
// manager, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.stopped.Load() {
		return errors.New("daemon already stopped")
	}
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another callpipe daemon instance is already running")
	}

	checks := preflight.RunDirectories(d.cfg)
	if err := preflight.Failures(checks, preflight.KindDirectory); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	endpoints := preflight.RunEndpoints(ctx, d.cfg)
	for _, r := range endpoints {
		if r.Passed {
			continue
		}
		logging.WarnWithContext(d.logger, "endpoint preflight failed", "preflight_failed",
			zap.String("check", r.Name),
			zap.String("detail", r.Detail),
			zap.String(logging.FieldErrorHint, "verify base_url and api_token in the config"),
			zap.String(logging.FieldImpact, "uploads will fail until the endpoint is reachable"),
		)
	}
	d.mu.Lock()
	d.checks = append(checks, endpoints...)
	d.mu.Unlock()

	if removed, err := d.history.Prune(ctx, time.Now().Add(-historyRetention)); err != nil {
		d.logger.Warn("history prune failed", zap.Error(err))
	} else if removed > 0 {
		d.logger.Info("pruned history", zap.Int64("removed", removed))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(); err != nil {
		d.manager.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("callpipe daemon started",
		zap.String("lock", d.lockPath),
		zap.String("api", d.api.address()),
	)
	return nil
}

// Stop fails in-flight tasks, disconnects event subscribers, stops the API,
// and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.manager.Stop()
	d.hub.Close()
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", zap.Error(err))
	}
	d.stopped.Store(true)
	d.running.Store(false)
	d.logger.Info("callpipe daemon stopped")
}

// Close stops the daemon and flushes history, notifications, and metrics.
func (d *Daemon) Close() error {
	d.Stop()
	d.recorder.Close()
	d.notifier.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.collector.Shutdown(ctx); err != nil {
		d.logger.Debug("metrics shutdown failed", zap.Error(err))
	}
	return d.history.Close()
}

// Manager exposes the workflow manager.
func (d *Daemon) Manager() *workflow.Manager {
	return d.manager
}

// APIAddress returns the address the API listens on, or the configured bind
// before Start.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.mu.Unlock()

	samples, err := d.collector.Snapshot(ctx)
	if err != nil {
		d.logger.Debug("metrics snapshot failed", zap.Error(err))
	}
	return api.DaemonStatus{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		APIBind:          d.api.address(),
		HistoryDBPath:    d.history.Path(),
		LockFilePath:     d.lockPath,
		StorageURL:       d.cfg.Storage.BaseURL,
		ProcessingURL:    d.cfg.Processing.BaseURL,
		Summary:          api.FromSummary(d.manager.Summary()),
		Checks:           api.FromChecks(checks),
		Metrics:          samples,
		EventSubscribers: d.hub.Subscribers(),
	}
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notify.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
