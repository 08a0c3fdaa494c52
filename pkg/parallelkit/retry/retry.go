package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the delay after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// Retryable overrides IsRetryable when set.
	Retryable func(error) bool
}

// Default retries transient failures three times in total.
var Default = Config{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// None makes exactly one attempt.
var None = Config{
	MaxAttempts: 1,
}

// Option configures a Config.
type Option func(*Config)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		c.MaxAttempts = n
	}
}

// WithBackoff sets the initial and maximum backoff.
func WithBackoff(initial, maxBackoff time.Duration) Option {
	return func(c *Config) {
		c.InitialBackoff = initial
		c.MaxBackoff = maxBackoff
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) Option {
	return func(c *Config) {
		c.Jitter = j
	}
}

// WithRetryable sets a custom retryability check.
func WithRetryable(fn func(error) bool) Option {
	return func(c *Config) {
		c.Retryable = fn
	}
}

// NewConfig returns Default with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := Default
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Result holds the outcome of Do.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. A failed Result carries a *CategorizedError.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	maxAttempts := max(cfg.MaxAttempts, 1)
	backoff := cfg.InitialBackoff

	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	fail := func(err error, attempts int, category Category, context string) Result[T] {
		return Result[T]{
			Err:      &CategorizedError{Err: err, Category: category, Attempts: attempts, Context: context},
			Attempts: attempts,
			Duration: time.Since(start),
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(err, attempt-1, CategoryPermanent, "context cancelled")
		}

		value, err := fn(ctx)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt, Duration: time.Since(start)}
		}
		lastErr = err

		if !retryable(err) {
			return fail(err, attempt, Categorize(err), "")
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fail(ctx.Err(), attempt, CategoryPermanent, "context cancelled during backoff")
		case <-time.After(withJitter(backoff, cfg.Jitter)):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fail(lastErr, maxAttempts, Categorize(lastErr), "max attempts exceeded")
}

// withJitter returns base +/- base*jitter*rand.
func withJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	delta := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + delta)
}
