package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"callpipe/internal/api"
	"callpipe/internal/config"
	"callpipe/internal/journal"
	"callpipe/internal/logging"
	"callpipe/internal/queue"
	"callpipe/internal/workflow"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	cfg    *config.Config
	bind   string
	logger *zap.Logger
	daemon *Daemon
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *zap.Logger) *apiServer {
	srv := &apiServer{
		cfg:    cfg,
		bind:   cfg.Paths.APIBind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(authMiddleware(s.cfg.Paths.APIToken))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/progress", s.handleProgress)
		r.Get("/events", s.daemon.hub.ServeHTTP)
		r.Post("/notifications/test", s.handleTestNotification)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleSubmit)
			r.Delete("/", s.handleClearTasks)
			r.Get("/{id}", s.handleGetTask)
			r.Post("/{id}/{action}", s.handleTaskAction)
		})

		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
	})
	return r
}

func (s *apiServer) start() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", zap.Error(err))
		}
	}()
	s.logger.Info("api server listening", zap.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown incomplete", zap.Error(err))
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	samples, err := s.daemon.collector.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.MetricsResponse{Metrics: samples})
}

func (s *apiServer) handleProgress(w http.ResponseWriter, _ *http.Request) {
	m := s.daemon.manager
	writeJSON(w, http.StatusOK, api.ProgressResponse{
		Percent: m.GlobalProgress(),
		Summary: api.FromSummary(m.Summary()),
		Counts:  api.FromCounts(m.Counts()),
	})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	writeJSON(w, http.StatusOK, api.NotificationTestResponse{Sent: sent, Message: message})
}

func (s *apiServer) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	m := s.daemon.manager
	tasks := m.List()
	writeJSON(w, http.StatusOK, api.TaskListResponse{
		Tasks:   api.FromTasks(tasks),
		Summary: api.FromSummary(queue.Summarize(tasks)),
	})
}

func (s *apiServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.daemon.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[api.SubmitRequest](w, r)
	if !ok {
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}

	artifacts := make([]queue.Artifact, 0, len(req.Paths))
	for _, raw := range req.Paths {
		path, err := config.ExpandPath(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", raw, err))
			return
		}
		if !filepath.IsAbs(path) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: path must be absolute", raw))
			return
		}
		artifact, err := queue.NewFileArtifact(path, s.cfg.MaxFileSize())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		artifacts = append(artifacts, artifact)
	}

	ids, err := s.daemon.manager.Submit(r.Context(), artifacts, s.settingsFor(req))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.SubmitResponse{TaskIDs: ids})
}

// settingsFor fills empty request settings from the [defaults] section.
func (s *apiServer) settingsFor(req api.SubmitRequest) queue.Settings {
	settings := queue.Settings{
		Destination: strings.TrimSpace(req.Destination),
		Checklist:   strings.TrimSpace(req.Checklist),
		Model:       strings.TrimSpace(req.Model),
		AutoProcess: s.cfg.Defaults.AutoProcess,
	}
	if settings.Destination == "" {
		settings.Destination = s.cfg.Defaults.Destination
	}
	if settings.Checklist == "" {
		settings.Checklist = s.cfg.Defaults.Checklist
	}
	if settings.Model == "" {
		settings.Model = s.cfg.Defaults.Model
	}
	if req.AutoProcess != nil {
		settings.AutoProcess = *req.AutoProcess
	}
	return settings
}

func (s *apiServer) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m := s.daemon.manager

	var (
		task queue.Task
		err  error
	)
	switch chi.URLParam(r, "action") {
	case "pause":
		task, err = m.Pause(id)
	case "resume":
		task, err = m.Resume(id)
	case "cancel":
		task, err = m.Cancel(id)
	case "retry":
		task, err = m.Retry(id)
	default:
		writeError(w, http.StatusNotFound, "unknown task action")
		return
	}
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleClearTasks(w http.ResponseWriter, r *http.Request) {
	var removed int
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "completed":
		removed = s.daemon.manager.ClearCompleted()
	case "all":
		removed = s.daemon.manager.ClearAll()
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scope %q", scope))
		return
	}
	writeJSON(w, http.StatusOK, api.ClearResponse{Removed: int64(removed)})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := journal.Filter{BatchID: strings.TrimSpace(query.Get("batch"))}
	for _, value := range query["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := s.daemon.history.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: api.FromEntries(entries)})
}

func (s *apiServer) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	removed, err := s.daemon.history.Clear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.ClearResponse{Removed: removed})
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// writeWorkflowError maps workflow and queue errors to HTTP statuses.
func writeWorkflowError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrNotRetryable):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidDestination), errors.Is(err, workflow.ErrNoArtifacts),
		errors.Is(err, queue.ErrInvalidArtifact):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrNotRunning):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
