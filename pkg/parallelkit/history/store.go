package history

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// Store persists run summaries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save inserts or replaces a run.
	Save(ctx context.Context, run *Run) error

	// Get retrieves a run by ID.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns runs matching filter, newest first.
	List(ctx context.Context, filter *ListFilter) ([]*Run, error)

	// Delete removes a run.
	Delete(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}

// ListFilter specifies criteria for listing runs. A nil filter matches all.
type ListFilter struct {
	// Name filters by run name.
	Name string

	// Executor filters by executor label.
	Executor string

	// Since keeps runs started at or after this time.
	Since time.Time

	// Limit is the maximum number of results.
	Limit int

	// Offset is the number of results to skip.
	Offset int
}

var (
	// ErrRunNotFound is returned when a run cannot be found.
	ErrRunNotFound = errors.New("run not found")

	// ErrMissingID is returned when saving a run without an ID.
	ErrMissingID = errors.New("run ID is required")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("history store is closed")
)

func (f *ListFilter) matches(r *Run) bool {
	if f == nil {
		return true
	}
	if f.Name != "" && r.Name != f.Name {
		return false
	}
	if f.Executor != "" && r.Executor != f.Executor {
		return false
	}
	if !f.Since.IsZero() && r.StartedAt.Before(f.Since) {
		return false
	}
	return true
}

// newestFirst orders runs by start time descending, then by ID.
func newestFirst(a, b *Run) int {
	if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// MemoryStore is an in-memory Store.
// Suitable for testing and short-lived processes.
type MemoryStore struct {
	runs   map[string]*Run
	mu     sync.RWMutex
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*Run),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter *ListFilter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	result := []*Run{}
	for _, run := range s.runs {
		if filter.matches(run) {
			result = append(result, run.Clone())
		}
	}
	slices.SortFunc(result, newestFirst)

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(result) {
				return []*Run{}, nil
			}
			result = result[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(result) {
			result = result[:filter.Limit]
		}
	}
	return result, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.runs[id]; !ok {
		return ErrRunNotFound
	}
	delete(s.runs, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
