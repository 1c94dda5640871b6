package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callpipe/internal/queue"
)

// ErrNotTerminal is returned when recording a task that is still in flight.
var ErrNotTerminal = errors.New("task is not terminal")

const entryColumns = "task_id, attempt, batch_id, artifact_name, size_bytes, destination, status, failure_kind, error_message, remote_artifact_id, created_at, finished_at"

// Entry is one recorded task attempt.
type Entry struct {
	TaskID           string
	Attempt          int
	BatchID          string
	ArtifactName     string
	SizeBytes        int64
	Destination      string
	Status           queue.Status
	FailureKind      queue.FailureKind
	ErrorMessage     string
	RemoteArtifactID string
	CreatedAt        time.Time
	FinishedAt       time.Time
}

// Duration is the wall time from submission to the terminal status.
func (e Entry) Duration() time.Duration {
	if e.CreatedAt.IsZero() || e.FinishedAt.Before(e.CreatedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.CreatedAt)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Statuses []queue.Status
	BatchID  string
	Limit    int
}

// Record stores the terminal snapshot of a task attempt.
func (s *Store) Record(ctx context.Context, task queue.Task) error {
	if !task.IsTerminal() {
		return fmt.Errorf("record %s in %s: %w", task.ID, task.Status, ErrNotTerminal)
	}
	finished := task.UpdatedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT OR REPLACE INTO task_history (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Attempt,
		nullableString(task.BatchID),
		task.Artifact.Name,
		task.TotalBytes,
		task.Settings.Destination,
		string(task.Status),
		nullableString(string(task.FailureKind)),
		nullableString(task.ErrorMessage),
		nullableString(task.RemoteArtifactID),
		formatTime(task.CreatedAt),
		formatTime(finished),
	)
	if err != nil {
		return fmt.Errorf("record task %s: %w", task.ID, err)
	}
	return nil
}

// List returns recorded entries, most recently finished first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM task_history`
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.BatchID != "" {
		where = append(where, `batch_id = ?`)
		args = append(args, filter.BatchID)
	}
	for i, clause := range where {
		if i == 0 {
			query += ` WHERE ` + clause
		} else {
			query += ` AND ` + clause
		}
	}
	query += ` ORDER BY finished_at DESC, task_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns the number of recorded attempts per terminal status.
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM task_history GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[queue.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[queue.Status(status)] = count
	}
	return stats, rows.Err()
}

// Clear removes every recorded entry.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM task_history`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

// Prune removes entries that finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM task_history WHERE finished_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry       Entry
		batchID     sql.NullString
		status      string
		failureKind sql.NullString
		errMessage  sql.NullString
		remoteID    sql.NullString
		createdRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&entry.TaskID,
		&entry.Attempt,
		&batchID,
		&entry.ArtifactName,
		&entry.SizeBytes,
		&entry.Destination,
		&status,
		&failureKind,
		&errMessage,
		&remoteID,
		&createdRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.BatchID = batchID.String
	entry.Status = queue.Status(status)
	entry.FailureKind = queue.FailureKind(failureKind.String)
	entry.ErrorMessage = errMessage.String
	entry.RemoteArtifactID = remoteID.String
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if finished, err := parseTimeString(finishedRaw); err == nil {
		entry.FinishedAt = finished
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// formatTime uses a fixed-width layout so lexical order in SQLite matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2-1)
	for i := range count {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
