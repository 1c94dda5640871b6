package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTransferring Status = "transferring"
	StatusPaused       Status = "paused"
	StatusTransferred  Status = "transferred"
	StatusProcessing   Status = "processing"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// DaemonStopReason is the error message set when tasks are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

// MaxInFlightPercent caps progress until the remote pipeline confirms completion.
const MaxInFlightPercent = 99.0

// FailureKind distinguishes where a failed task broke, which decides whether
// it can be retried in place.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureTransfer   FailureKind = "transfer"
	FailureProcessing FailureKind = "processing"
)

var allStatuses = []Status{
	StatusPending,
	StatusTransferring,
	StatusPaused,
	StatusTransferred,
	StatusProcessing,
	StatusTranscribing,
	StatusAnalyzing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// advancingStatuses are the states in which progress moves forward.
var advancingStatuses = map[Status]struct{}{
	StatusTransferring: {},
	StatusProcessing:   {},
	StatusTranscribing: {},
	StatusAnalyzing:    {},
}

var remoteStatuses = map[Status]struct{}{
	StatusTransferred:  {},
	StatusProcessing:   {},
	StatusTranscribing: {},
	StatusAnalyzing:    {},
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// Settings is the snapshot of submit options a task was created with.
type Settings struct {
	Destination string
	Checklist   string
	Model       string
	AutoProcess bool
}

// Summary describes aggregated task counts per key lifecycle states.
type Summary struct {
	Total     int
	Active    int
	Completed int
	Failed    int
	Cancelled int
}

// Task is one artifact's transfer and processing record.
type Task struct {
	ID               string
	BatchID          string
	Artifact         Artifact
	Status           Status
	ProgressPercent  float64
	TransferredBytes int64
	TotalBytes       int64
	// ETA is absent when progress is zero or the task is not advancing.
	ETA              *time.Duration
	RemoteArtifactID string
	Settings         Settings
	ErrorMessage     string
	FailureKind      FailureKind
	Attempt          int
	Version          uint64
	CreatedAt        time.Time
	StartedAt        time.Time
	UpdatedAt        time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further automatic transition occurs from status.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsAdvancing reports whether progress moves forward in status.
func (s Status) IsAdvancing() bool {
	_, ok := advancingStatuses[s]
	return ok
}

// IsRemote reports whether the task is owned by the processing poller in status.
func (s Status) IsRemote() bool {
	_, ok := remoteStatuses[s]
	return ok
}

// IsTerminal returns true when the task reached Completed, Failed, or Cancelled.
func (t Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t Task) Clone() Task {
	cp := t
	if t.ETA != nil {
		eta := *t.ETA
		cp.ETA = &eta
	}
	return cp
}

// InitProgress resets progress for a new phase (transfer or remote processing).
func (t *Task) InitProgress(now time.Time) {
	t.ProgressPercent = 0
	t.ETA = nil
	t.StartedAt = now
}

// ApplyTransferProgress records bytes sent by the transfer channel. Progress is
// derived from bytes, capped below 100, and never moves backward.
func (t *Task) ApplyTransferProgress(sent int64, now time.Time) {
	if sent > t.TotalBytes {
		sent = t.TotalBytes
	}
	if sent > t.TransferredBytes {
		t.TransferredBytes = sent
	}
	percent := MaxInFlightPercent
	if t.TotalBytes > 0 {
		percent = min(MaxInFlightPercent, float64(t.TransferredBytes)/float64(t.TotalBytes)*100)
	}
	t.advance(percent, now)
}

// ApplyRemoteProgress records a percentage reported by the processing endpoint.
func (t *Task) ApplyRemoteProgress(percent float64, now time.Time) {
	if percent < 0 {
		percent = 0
	}
	t.advance(min(MaxInFlightPercent, percent), now)
}

func (t *Task) advance(percent float64, now time.Time) {
	if percent > t.ProgressPercent {
		t.ProgressPercent = percent
	}
	if !t.Status.IsAdvancing() {
		t.ETA = nil
		return
	}
	t.ETA = EstimateRemaining(t.ProgressPercent, now.Sub(t.StartedAt))
}

// EstimateRemaining extrapolates the remaining time from the elapsed time and
// the progress made so far. It returns nil when progress is zero.
func EstimateRemaining(percent float64, elapsed time.Duration) *time.Duration {
	if percent <= 0 || elapsed < 0 {
		return nil
	}
	remaining := time.Duration((100 - percent) / percent * float64(elapsed))
	return &remaining
}

// SetCompleted finalizes a successful task.
func (t *Task) SetCompleted() {
	t.Status = StatusCompleted
	t.ProgressPercent = 100
	t.ETA = nil
	t.ErrorMessage = ""
	t.FailureKind = FailureNone
}

// SetFailed marks the task as failed with a human-readable reason.
func (t *Task) SetFailed(kind FailureKind, message string) {
	t.Status = StatusFailed
	t.FailureKind = kind
	t.ErrorMessage = strings.TrimSpace(message)
	if t.ErrorMessage == "" {
		t.ErrorMessage = "unknown failure"
	}
	t.ETA = nil
}

// SetCancelled freezes the task in Cancelled.
func (t *Task) SetCancelled() {
	t.Status = StatusCancelled
	t.ETA = nil
}

// ResetForRetry clears the previous attempt's progress and failure so the
// transfer can start again from zero.
func (t *Task) ResetForRetry(now time.Time) {
	t.Attempt++
	t.TransferredBytes = 0
	t.RemoteArtifactID = ""
	t.ErrorMessage = ""
	t.FailureKind = FailureNone
	t.InitProgress(now)
}

// Summarize aggregates counts across the provided tasks.
func Summarize(tasks []Task) Summary {
	var s Summary
	s.Total = len(tasks)
	for _, task := range tasks {
		switch task.Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		default:
			s.Active++
		}
	}
	return s
}
