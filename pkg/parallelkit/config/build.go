package config

import (
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/checkpoint"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/dlq"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/retry"
)

// Policy builds a checkpoint.Policy from the "checkpoint" section.
// Unset keys take checkpoint.DefaultPolicy values.
func Policy(c Config) (checkpoint.Policy, error) {
	s := c.Section("checkpoint")
	def := checkpoint.DefaultPolicy(s.String("directory", ""))

	return checkpoint.NewPolicy(def.Directory,
		checkpoint.WithInterval(s.Int("interval", def.Interval)),
		checkpoint.WithName(s.String("name", def.Name)),
		checkpoint.WithFormat(checkpoint.Format(s.String("format", string(def.Format)))),
		checkpoint.WithRetention(s.Int("retention", def.RetentionCount)),
		checkpoint.WithAutoCleanup(s.Bool("auto_cleanup", def.AutoCleanupOnSuccess)),
	)
}

// Retry builds a retry.Config from the "retry" section on top of
// retry.Default. Without a section it returns retry.None.
func Retry(c Config) retry.Config {
	if !c.Has("retry") {
		return retry.None
	}
	s := c.Section("retry")
	d := retry.Default

	cfg := retry.NewConfig(
		retry.WithMaxAttempts(s.Int("max_attempts", d.MaxAttempts)),
		retry.WithBackoff(
			s.Duration("initial_backoff", d.InitialBackoff),
			s.Duration("max_backoff", d.MaxBackoff),
		),
		retry.WithJitter(s.Float("jitter", d.Jitter)),
	)
	cfg.BackoffFactor = s.Float("backoff_factor", d.BackoffFactor)
	return cfg
}

// DLQOptions builds dlq options from the "dlq" section.
// It fails only on an unknown mode.
func DLQOptions(c Config) ([]dlq.Option, error) {
	s := c.Section("dlq")

	mode, err := dlq.ParseMode(s.String("mode", ""))
	if err != nil {
		return nil, err
	}

	opts := []dlq.Option{
		dlq.WithMode(mode),
		dlq.WithMaxSize(s.Int("max_size", 0)),
		dlq.WithAutoPersist(s.Bool("auto_persist", true)),
	}
	if path := s.String("path", ""); path != "" {
		opts = append(opts, dlq.WithPath(path))
	}
	return opts, nil
}

// Workers returns the top-level "workers" setting, or defaultVal.
func Workers(c Config, defaultVal int) int {
	return c.Int("workers", defaultVal)
}

// BatchSize returns the top-level "batch_size" setting, or defaultVal.
func BatchSize(c Config, defaultVal int) int {
	return c.Int("batch_size", defaultVal)
}

// HistoryPath returns the history database path, empty when unset.
func HistoryPath(c Config) string {
	return c.String("history.path", "")
}
