// Package checkpoint persists partial progress of a parallel map so that a
// later run can resume where an earlier one stopped.
//
// A Manager owns one directory and one mutex. Each logical checkpoint name
// maps to a chain of files: the current file plus up to RetentionCount
// numbered predecessors, rotated on every Save:
//
//	embed_checkpoint.json      current
//	embed_checkpoint_v1.json   previous save
//	embed_checkpoint_v2.json   the one before that
//
// All operations on one Manager are fully serialized. There is no timeout;
// a stuck filesystem call blocks every other caller of the same Manager.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/parallelkit/internal/atomicfile"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/observability"
)

// Name validation errors. Both are wrapped in a *PersistenceError.
var (
	// ErrEmptyName indicates an operation was called without a logical name.
	ErrEmptyName = errors.New("checkpoint name is empty")

	// ErrInvalidName indicates a name that would resolve outside the
	// manager's directory.
	ErrInvalidName = errors.New("invalid checkpoint name")
)

// checkName rejects names that are empty, "." or "..", or that contain a
// path separator. Names map directly onto file names in the directory.
func checkName(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// Manager saves, loads, deletes and lists versioned checkpoints of
// Record[R]. It is safe for concurrent use.
type Manager[R any] struct {
	mu      sync.Mutex
	policy  Policy
	rotator *Rotator
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// FileInfo describes one file of a checkpoint chain.
type FileInfo struct {
	Name    string
	Version int
	Path    string
	Size    int64
	ModTime time.Time
}

type managerConfig struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// WithLogger sets the logger. Default: no logging.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) ManagerOption {
	return func(c *managerConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewManager validates policy, creates its directory and returns a Manager.
// An invalid policy yields a *ConfigurationError; a directory that cannot
// be created yields a *PersistenceError.
func NewManager[R any](policy Policy, opts ...ManagerOption) (*Manager[R], error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	cfg := managerConfig{metrics: observability.NoopMetrics{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(policy.Directory, 0o755); err != nil {
		return nil, &PersistenceError{Op: "init", Path: policy.Directory, Err: err}
	}

	return &Manager[R]{
		policy:  policy,
		rotator: NewRotator(policy.Directory, policy.Extension()),
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}, nil
}

// Policy returns the manager's policy.
func (m *Manager[R]) Policy() Policy {
	return m.policy
}

// PathFor returns the file path of a version of name (0 = current).
func (m *Manager[R]) PathFor(name string, version int) string {
	return m.rotator.PathFor(name, version)
}

// Save rotates the existing chain for name and writes rec as the new
// current file. It returns the path written.
//
// The record is encoded before anything on disk changes, so a record that
// cannot be encoded leaves the chain untouched. After that, a failure can
// leave the chain rotated without a current file.
func (m *Manager[R]) Save(name string, rec Record[R]) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, size, err := m.save(name, rec)
	m.metrics.RecordCheckpointSave(context.Background(), name, size, err)
	if err != nil {
		observability.LogCheckpointError(m.logger, name, "save", err)
		return "", err
	}
	observability.LogCheckpointSaved(m.logger, name, path, rec.Len(), size)
	return path, nil
}

func (m *Manager[R]) save(name string, rec Record[R]) (string, int64, error) {
	if err := checkName(name); err != nil {
		return "", 0, &PersistenceError{Op: "save", Err: err}
	}

	data, err := EncodeRecord(rec, m.policy.Format)
	if err != nil {
		return "", 0, &PersistenceError{Op: "save", Name: name, Err: err}
	}

	if err := m.rotator.Rotate(name, m.policy.RetentionCount); err != nil {
		return "", 0, &PersistenceError{Op: "rotate", Name: name, Err: err}
	}

	path := m.rotator.PathFor(name, 0)
	if err := atomicfile.Write(path, data); err != nil {
		return "", 0, &PersistenceError{Op: "save", Name: name, Path: path, Err: err}
	}
	return path, int64(len(data)), nil
}

// Load reads the current checkpoint for name.
//
// A missing current file is not an error: Load returns (nil, nil). A file
// that exists but cannot be read or decoded returns a *PersistenceError;
// for decode failures it wraps a *DecodeError.
func (m *Manager[R]) Load(name string) (*Record[R], error) {
	return m.LoadVersion(name, 0)
}

// LoadVersion reads a numbered predecessor (0 = current) with the same
// absent/corrupt semantics as Load.
func (m *Manager[R]) LoadVersion(name string, version int) (*Record[R], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.load(name, version)
	m.metrics.RecordCheckpointLoad(context.Background(), name, rec != nil, err)
	// An absent checkpoint is the fresh-start signal and is not logged.
	if err != nil {
		observability.LogCheckpointError(m.logger, name, "load", err)
	}
	return rec, err
}

func (m *Manager[R]) load(name string, version int) (*Record[R], error) {
	if err := checkName(name); err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	path := m.rotator.PathFor(name, version)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Name: name, Path: path, Err: err}
	}

	rec, err := DecodeRecord[R](data, m.policy.Format)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Name: name, Path: path, Err: err}
	}
	return &rec, nil
}

// Delete removes the current file and every retained version of name.
// It returns the number of files removed; 0 when nothing existed.
func (m *Manager[R]) Delete(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed, err := m.delete(name)
	m.metrics.RecordCheckpointDelete(context.Background(), name, removed, err)
	if err != nil {
		observability.LogCheckpointError(m.logger, name, "delete", err)
		return removed, err
	}
	observability.LogCheckpointDeleted(m.logger, name, removed)
	return removed, nil
}

func (m *Manager[R]) delete(name string) (int, error) {
	if err := checkName(name); err != nil {
		return 0, &PersistenceError{Op: "delete", Err: err}
	}

	removed, err := m.rotator.Remove(name, m.policy.RetentionCount)
	if err != nil {
		return removed, &PersistenceError{Op: "delete", Name: name, Err: err}
	}
	return removed, nil
}

// List returns the logical names that currently have files in the
// directory. The result is a point-in-time snapshot.
func (m *Manager[R]) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.rotator.Names()
	if err != nil {
		return nil, &PersistenceError{Op: "list", Path: m.policy.Directory, Err: err}
	}
	return names, nil
}

// Info describes the existing files of name's chain, current first.
func (m *Manager[R]) Info(name string) ([]FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkName(name); err != nil {
		return nil, &PersistenceError{Op: "info", Err: err}
	}

	versions, err := m.rotator.Versions(name, m.policy.RetentionCount)
	if err != nil {
		return nil, &PersistenceError{Op: "info", Name: name, Err: err}
	}

	infos := make([]FileInfo, 0, len(versions))
	for _, v := range versions {
		path := m.rotator.PathFor(name, v)
		st, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, &PersistenceError{Op: "info", Name: name, Path: path, Err: err}
		}
		infos = append(infos, FileInfo{
			Name:    name,
			Version: v,
			Path:    path,
			Size:    st.Size(),
			ModTime: st.ModTime(),
		})
	}
	return infos, nil
}
