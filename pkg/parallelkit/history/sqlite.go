package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists run history to SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) a history database at path.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			executor TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			total_items INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			resumed INTEGER NOT NULL,
			worker_count INTEGER NOT NULL,
			batch_size INTEGER NOT NULL,
			metadata TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_started_at
		ON runs(started_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return ErrMissingID
	}

	metadata, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, executor, started_at, duration_ns,
			total_items, succeeded, failed, resumed, worker_count, batch_size, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			executor = excluded.executor,
			started_at = excluded.started_at,
			duration_ns = excluded.duration_ns,
			total_items = excluded.total_items,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			resumed = excluded.resumed,
			worker_count = excluded.worker_count,
			batch_size = excluded.batch_size,
			metadata = excluded.metadata
	`, run.ID, run.Name, run.Executor, run.StartedAt.UnixNano(), int64(run.Duration),
		run.TotalItems, run.Succeeded, run.Failed, run.Resumed,
		run.WorkerCount, run.BatchSize, string(metadata))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

const selectRuns = `
	SELECT id, name, executor, started_at, duration_ns, total_items,
		succeeded, failed, resumed, worker_count, batch_size, metadata
	FROM runs`

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, filter *ListFilter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	query, args := buildListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

func buildListQuery(filter *ListFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter != nil {
		if filter.Name != "" {
			where = append(where, "name = ?")
			args = append(args, filter.Name)
		}
		if filter.Executor != "" {
			where = append(where, "executor = ?")
			args = append(args, filter.Executor)
		}
		if !filter.Since.IsZero() {
			where = append(where, "started_at >= ?")
			args = append(args, filter.Since.UnixNano())
		}
	}

	var b strings.Builder
	b.WriteString(selectRuns)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY started_at DESC, id ASC")

	if filter != nil && (filter.Limit > 0 || filter.Offset > 0) {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, max(filter.Offset, 0))
	}
	return b.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		startedAt int64
		duration  int64
		metadata  string
	)
	if err := row.Scan(&run.ID, &run.Name, &run.Executor, &startedAt, &duration,
		&run.TotalItems, &run.Succeeded, &run.Failed, &run.Resumed,
		&run.WorkerCount, &run.BatchSize, &metadata); err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(0, startedAt)
	run.Duration = time.Duration(duration)
	if err := json.Unmarshal([]byte(metadata), &run.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &run, nil
}

var _ Store = (*SQLiteStore)(nil)
