package parallelkit

import (
	"log/slog"
	"runtime"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/checkpoint"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/dlq"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/history"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/observability"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/retry"
)

// executorLabel is recorded as history.Run.Executor.
const executorLabel = "goroutines"

// runConfig holds configuration for a Map call.
type runConfig struct {
	workers   int
	batchSize int

	// manager is a *checkpoint.Manager[R]; Map asserts the type.
	manager        any
	checkpointName string
	strictResume   bool

	retry   retry.Config
	dlq     *dlq.Queue
	history history.Store

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// defaultRunConfig returns the default configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		workers:   runtime.NumCPU(),
		batchSize: 1,
		retry:     retry.None,
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
}

// Option configures a Map call.
type Option func(*runConfig)

// WithWorkers sets the number of items processed concurrently.
// Default: runtime.NumCPU(). Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(c *runConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithBatchSize sets how many items a worker takes at once.
// Default: 1. Values below 1 are ignored.
//
// Progress, and therefore checkpoints, advance one whole batch at a time.
func WithBatchSize(n int) Option {
	return func(c *runConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithCheckpoint enables checkpoint and resume through m.
//
// The logical name is name, else the policy's Name, else "run-<id>". A
// derived name is new on every call, so pass a stable name to resume.
//
// Example:
//
//	policy, _ := checkpoint.NewPolicy("./ckpt", checkpoint.WithInterval(100))
//	m, _ := checkpoint.NewManager[Embedding](policy)
//	res, err := parallelkit.Map(ctx, docs, embed, parallelkit.WithCheckpoint(m, "embed"))
func WithCheckpoint[R any](m *checkpoint.Manager[R], name string) Option {
	return func(c *runConfig) {
		c.manager = m
		c.checkpointName = name
	}
}

// WithStrictResume makes Map fail with a *resume.ReconciliationError when
// a loaded checkpoint does not fit the input, instead of ignoring the
// entries that do not fit.
func WithStrictResume() Option {
	return func(c *runConfig) {
		c.strictResume = true
	}
}

// WithRetry retries failed items under cfg. Default: retry.None.
func WithRetry(cfg retry.Config) Option {
	return func(c *runConfig) {
		c.retry = cfg
	}
}

// WithDeadLetterQueue sends every permanently failed item to q.
func WithDeadLetterQueue(q *dlq.Queue) Option {
	return func(c *runConfig) {
		c.dlq = q
	}
}

// WithHistory records a history.Run in store when the run ends.
func WithHistory(store history.Store) Option {
	return func(c *runConfig) {
		c.history = store
	}
}

// WithLogger sets the logger. Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing sets the span manager. Default: no-op.
func WithTracing(s observability.SpanManager) Option {
	return func(c *runConfig) {
		if s != nil {
			c.spans = s
		}
	}
}
