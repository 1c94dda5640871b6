package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"callpipe/internal/config"
)

// Store persists terminal task snapshots in SQLite. It is safe for concurrent
// use; database/sql pools the connections.
type Store struct {
	db      *sql.DB
	path    string
	rebuilt bool
}

const (
	busyAttempts   = 5
	busyFirstDelay = 10 * time.Millisecond
	busyMaxDelay   = 200 * time.Millisecond
)

// errBusy matches SQLITE_BUSY (5) from the modernc driver.
func errBusy(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()&0xff == 5
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// withBusyRetry runs op until it succeeds, fails with a non-busy error, or
// runs out of attempts. Delays double up to busyMaxDelay.
func withBusyRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	delay := busyFirstDelay
	for attempt := 1; ; attempt++ {
		out, err := op()
		if err == nil || !errBusy(err) || attempt == busyAttempts {
			return out, err
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, busyMaxDelay)
	}
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return withBusyRetry(ctx, func() (sql.Result, error) {
		return s.db.ExecContext(ctx, query, args...)
	})
}

// Open opens the history database configured for the daemon, creating the
// state directory when needed.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens (or creates) a history database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	store := &Store{db: db, path: dbPath}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history db %s: %w", dbPath, err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Rebuilt reports whether an outdated history file was discarded on open.
func (s *Store) Rebuilt() bool {
	return s.rebuilt
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
