// Package dlq provides a dead-letter queue for items that failed
// permanently during a parallel run.
//
// A Queue keeps entries in memory and optionally mirrors them to a JSON
// file. How a failed write is treated is an explicit choice:
//
//	q := dlq.New(dlq.WithPath("failed.json"), dlq.WithMode(dlq.Strict))
//
// In BestEffort mode (the default) a failed automatic persist is logged and
// the in-memory operation still succeeds. In Strict mode it is returned to
// the caller. Explicit calls to Persist and Load always return their errors.
package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/parallelkit/internal/atomicfile"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/observability"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/retry"
)

// ErrQueueFull is returned by Add when the queue holds MaxSize entries.
var ErrQueueFull = errors.New("dead-letter queue is full")

// Mode selects how automatic persistence failures are handled.
type Mode int

const (
	// BestEffort logs persistence failures and carries on.
	BestEffort Mode = iota
	// Strict returns persistence failures to the caller.
	Strict
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case BestEffort:
		return "best-effort"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParseMode parses "best-effort" or "strict".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "best-effort", "besteffort", "":
		return BestEffort, nil
	case "strict":
		return Strict, nil
	default:
		return BestEffort, fmt.Errorf("unknown dlq mode %q", s)
	}
}

// PersistError wraps a failure to write or read the queue file.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	return fmt.Sprintf("dlq %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistError) Unwrap() error {
	return e.Err
}

// Stats describes queue activity since construction.
type Stats struct {
	Size      int   // Current number of entries
	Added     int64 // Total entries added
	Recovered int64 // Total entries removed by a successful Retry
	Cleared   int64 // Total entries removed by Clear
}

// Queue is a dead-letter queue. It is safe for concurrent use.
type Queue struct {
	mu          sync.Mutex
	entries     []Entry
	path        string
	mode        Mode
	maxSize     int
	autoPersist bool
	logger      *slog.Logger

	added     int64
	recovered int64
	cleared   int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithPath sets the file the queue persists to. Without a path the queue
// is memory only and Persist is a no-op.
func WithPath(path string) Option {
	return func(q *Queue) {
		q.path = path
	}
}

// WithMode sets the persistence failure mode. Default: BestEffort.
func WithMode(m Mode) Option {
	return func(q *Queue) {
		q.mode = m
	}
}

// WithMaxSize limits the number of entries. Zero or less means unbounded.
func WithMaxSize(n int) Option {
	return func(q *Queue) {
		q.maxSize = n
	}
}

// WithLogger sets the logger. Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithAutoPersist controls whether Add, Clear and Retry write the file.
// Default: true.
func WithAutoPersist(enabled bool) Option {
	return func(q *Queue) {
		q.autoPersist = enabled
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{autoPersist: true}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Open creates a queue and loads existing entries from path.
// A missing file yields an empty queue.
func Open(path string, opts ...Option) (*Queue, error) {
	q := New(append(opts, WithPath(path))...)
	if err := q.Load(); err != nil {
		return nil, err
	}
	return q, nil
}

// Path returns the persistence path, empty for memory-only queues.
func (q *Queue) Path() string {
	return q.path
}

// Mode returns the persistence failure mode.
func (q *Queue) Mode() Mode {
	return q.mode
}

// Add appends an entry, assigning an ID and FailedAt when unset. In Strict
// mode a persist failure is returned but the entry stays queued in memory.
func (q *Queue) Add(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.entries) >= q.maxSize {
		return ErrQueueFull
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.FailedAt.IsZero() {
		e.FailedAt = time.Now()
	}

	q.entries = append(q.entries, e)
	q.added++
	return q.autoPersistLocked()
}

// Entries returns a copy of the entries in insertion order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.entries)
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear removes every entry.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.cleared += int64(len(q.entries))
	q.entries = nil
	return q.autoPersistLocked()
}

// Stats returns queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Size:      len(q.entries),
		Added:     q.added,
		Recovered: q.recovered,
		Cleared:   q.cleared,
	}
}

// Persist writes all entries to the queue file.
func (q *Queue) Persist() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.persistLocked()
}

// Load replaces the in-memory entries with those in the queue file.
// A missing file leaves the queue unchanged.
func (q *Queue) Load() error {
	if q.path == "" {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := os.ReadFile(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &PersistError{Op: "load", Path: q.path, Err: err}
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return &PersistError{Op: "load", Path: q.path, Err: err}
	}
	q.entries = entries
	return nil
}

// Retry reprocesses every entry with fn under cfg. Entries fn handles
// successfully are removed; the rest are kept with their attempt count,
// error and failure time updated. It returns how many entries recovered.
//
// fn runs without the queue lock held, so it may call Add. A cancelled ctx
// stops the pass early; entries not yet visited are left as they were.
func (q *Queue) Retry(ctx context.Context, fn func(context.Context, Entry) error, cfg retry.Config) (int, error) {
	pending := q.Entries()

	recovered := make(map[string]struct{})
	failed := make(map[string]Entry)
	var ctxErr error
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}

		res := retry.Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx, e)
		})
		if res.Err == nil {
			recovered[e.ID] = struct{}{}
			continue
		}
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}

		e.Attempts += res.Attempts
		e.Error = res.Err.Error()
		e.ErrorType = errorType(res.Err)
		e.FailedAt = time.Now()
		failed[e.ID] = e
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	for _, e := range q.entries {
		if _, ok := recovered[e.ID]; ok {
			continue
		}
		if updated, ok := failed[e.ID]; ok {
			e = updated
		}
		kept = append(kept, e)
	}
	q.entries = kept
	q.recovered += int64(len(recovered))

	if err := q.autoPersistLocked(); err != nil {
		return len(recovered), err
	}
	return len(recovered), ctxErr
}

func (q *Queue) autoPersistLocked() error {
	if !q.autoPersist {
		return nil
	}
	err := q.persistLocked()
	if err == nil {
		return nil
	}
	if q.mode == Strict {
		return err
	}
	observability.LogPersistError(q.logger, "dlq", q.path, err)
	return nil
}

func (q *Queue) persistLocked() error {
	if q.path == "" {
		return nil
	}

	entries := q.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return &PersistError{Op: "encode", Path: q.path, Err: err}
	}
	if err := atomicfile.Write(q.path, data); err != nil {
		return &PersistError{Op: "write", Path: q.path, Err: err}
	}
	return nil
}
