/*
Package config reads parallelkit settings from YAML, JSON or an already
decoded map (for example viper's AllSettings) and turns them into the typed
values the other packages take.

# Layout

	workers: 8
	batch_size: 16
	checkpoint:
	  directory: ./checkpoints
	  interval: 100
	  name: embed
	  format: json        # or binary
	  retention: 2
	  auto_cleanup: true
	retry:
	  max_attempts: 3
	  initial_backoff: 500ms
	  max_backoff: 30s
	dlq:
	  path: failed.json
	  mode: strict        # or best-effort
	  max_size: 1000
	history:
	  path: history.db

# Access

Keys may be dotted to reach into sections:

	cfg, err := config.FromFile("parallelkit.yaml")
	interval := cfg.Int("checkpoint.interval", 0)

Accessors return the default when a key is missing or its value cannot be
converted. Strings are parsed for numeric, boolean and duration accessors,
so values that arrive from environment variables work unchanged.

# Builders

Policy, Retry and DLQOptions build validated values for the checkpoint,
retry and dlq packages. Only Policy can fail on content: an invalid policy
is reported as a *checkpoint.ConfigurationError.
*/
package config
