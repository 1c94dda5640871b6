package api

import (
	"time"

	"callpipe/internal/journal"
	"callpipe/internal/preflight"
	"callpipe/internal/queue"
)

// FromTask converts a queue task into its API representation.
func FromTask(task queue.Task) Task {
	dto := Task{
		ID:               task.ID,
		BatchID:          task.BatchID,
		Artifact:         task.Artifact.Name,
		ContentType:      task.Artifact.ContentType,
		Status:           string(task.Status),
		ProgressPercent:  task.ProgressPercent,
		TransferredBytes: task.TransferredBytes,
		TotalBytes:       task.TotalBytes,
		RemoteArtifactID: task.RemoteArtifactID,
		Destination:      task.Settings.Destination,
		Checklist:        task.Settings.Checklist,
		Model:            task.Settings.Model,
		AutoProcess:      task.Settings.AutoProcess,
		ErrorMessage:     task.ErrorMessage,
		FailureKind:      string(task.FailureKind),
		Attempt:          task.Attempt,
		Version:          task.Version,
		CreatedAt:        formatTime(task.CreatedAt),
		StartedAt:        formatTime(task.StartedAt),
		UpdatedAt:        formatTime(task.UpdatedAt),
	}
	if task.ETA != nil {
		seconds := task.ETA.Seconds()
		dto.ETASeconds = &seconds
	}
	return dto
}

// FromTasks converts a slice of queue tasks.
func FromTasks(tasks []queue.Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromSummary converts a queue summary.
func FromSummary(s queue.Summary) Summary {
	return Summary{
		Total:     s.Total,
		Active:    s.Active,
		Completed: s.Completed,
		Failed:    s.Failed,
		Cancelled: s.Cancelled,
	}
}

// FromCounts converts per-status counts, including zero entries for every
// known status so consumers can render a stable table.
func FromCounts(counts map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = counts[status]
	}
	return out
}

// FromEntry converts a journal entry.
func FromEntry(entry journal.Entry) HistoryEntry {
	return HistoryEntry{
		TaskID:           entry.TaskID,
		Attempt:          entry.Attempt,
		BatchID:          entry.BatchID,
		Artifact:         entry.ArtifactName,
		SizeBytes:        entry.SizeBytes,
		Destination:      entry.Destination,
		Status:           string(entry.Status),
		FailureKind:      string(entry.FailureKind),
		ErrorMessage:     entry.ErrorMessage,
		RemoteArtifactID: entry.RemoteArtifactID,
		CreatedAt:        formatTime(entry.CreatedAt),
		FinishedAt:       formatTime(entry.FinishedAt),
		DurationSeconds:  entry.Duration().Seconds(),
	}
}

// FromEntries converts journal entries.
func FromEntries(entries []journal.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromEntry(entry))
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{
			Name:   r.Name,
			Kind:   string(r.Kind),
			Passed: r.Passed,
			Detail: r.Detail,
		})
	}
	return out
}

// ParseTime parses an API timestamp. Empty strings yield the zero time.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateTimeFormat, value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
