package api

import "callpipe/internal/metrics"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a task in a transport-friendly format.
type Task struct {
	ID               string   `json:"id"`
	BatchID          string   `json:"batchId"`
	Artifact         string   `json:"artifact"`
	ContentType      string   `json:"contentType,omitempty"`
	Status           string   `json:"status"`
	// ProgressPercent covers the current phase only. It restarts at 0 when the
	// upload hands off to remote processing.
	ProgressPercent  float64  `json:"progressPercent"`
	TransferredBytes int64    `json:"transferredBytes"`
	TotalBytes       int64    `json:"totalBytes"`
	ETASeconds       *float64 `json:"etaSeconds,omitempty"`
	RemoteArtifactID string   `json:"remoteArtifactId,omitempty"`
	Destination      string   `json:"destination"`
	Checklist        string   `json:"checklist,omitempty"`
	Model            string   `json:"model,omitempty"`
	AutoProcess      bool     `json:"autoProcess"`
	ErrorMessage     string   `json:"errorMessage,omitempty"`
	FailureKind      string   `json:"failureKind,omitempty"`
	Attempt          int      `json:"attempt"`
	Version          uint64   `json:"version"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	StartedAt        string   `json:"startedAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

// Summary mirrors queue.Summary.
type Summary struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// SubmitRequest asks the daemon to upload local files. Empty settings fall
// back to the [defaults] config section.
type SubmitRequest struct {
	Paths       []string `json:"paths"`
	Destination string   `json:"destination,omitempty"`
	Checklist   string   `json:"checklist,omitempty"`
	Model       string   `json:"model,omitempty"`
	AutoProcess *bool    `json:"autoProcess,omitempty"`
}

// SubmitResponse lists the created task ids in submission order.
type SubmitResponse struct {
	TaskIDs []string `json:"taskIds"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks   []Task  `json:"tasks"`
	Summary Summary `json:"summary"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// ClearResponse reports how many tasks or history entries were removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// ProgressResponse carries the aggregate progress view.
type ProgressResponse struct {
	Percent float64        `json:"percent"`
	Summary Summary        `json:"summary"`
	Counts  map[string]int `json:"counts"`
}

// HistoryEntry is one recorded task attempt.
type HistoryEntry struct {
	TaskID           string  `json:"taskId"`
	Attempt          int     `json:"attempt"`
	BatchID          string  `json:"batchId,omitempty"`
	Artifact         string  `json:"artifact"`
	SizeBytes        int64   `json:"sizeBytes"`
	Destination      string  `json:"destination"`
	Status           string  `json:"status"`
	FailureKind      string  `json:"failureKind,omitempty"`
	ErrorMessage     string  `json:"errorMessage,omitempty"`
	RemoteArtifactID string  `json:"remoteArtifactId,omitempty"`
	CreatedAt        string  `json:"createdAt,omitempty"`
	FinishedAt       string  `json:"finishedAt,omitempty"`
	DurationSeconds  float64 `json:"durationSeconds"`
}

// HistoryResponse wraps history entries, most recent first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// CheckResult mirrors a preflight result.
type CheckResult struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running          bool             `json:"running"`
	PID              int              `json:"pid"`
	APIBind          string           `json:"apiBind"`
	HistoryDBPath    string           `json:"historyDbPath"`
	LockFilePath     string           `json:"lockFilePath"`
	StorageURL       string           `json:"storageUrl"`
	ProcessingURL    string           `json:"processingUrl"`
	Summary          Summary          `json:"summary"`
	Checks           []CheckResult    `json:"checks"`
	Metrics          []metrics.Sample `json:"metrics,omitempty"`
	EventSubscribers int              `json:"eventSubscribers"`
}

// MetricsResponse is a point-in-time snapshot of the daemon's instruments.
type MetricsResponse struct {
	Metrics []metrics.Sample `json:"metrics"`
}

// NotificationTestResponse reports the outcome of a test notification.
type NotificationTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// Event types streamed over /api/events.
const (
	EventTypeTaskUpdated   = "task.updated"
	EventTypeTaskRemoved   = "task.removed"
	EventTypeBatchFinished = "batch.finished"
)

// EventMessage is the envelope for websocket messages. Payload holds a Task
// for task events and a BatchFinished for batch.finished.
type EventMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// BatchFinished is the payload of batch.finished.
type BatchFinished struct {
	BatchID string  `json:"batchId"`
	Summary Summary `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}
