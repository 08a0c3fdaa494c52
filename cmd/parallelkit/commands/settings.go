package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/config"
)

const (
	envPrefix            = "PARALLELKIT"
	envKeySeparator      = "_"
	defaultCheckpointDir = ".parallelkit/checkpoints"
)

// Sentinel errors for missing locations.
var (
	ErrNoDLQPath     = errors.New("no dead-letter queue configured (use --dlq or dlq.path)")
	ErrNoHistoryPath = errors.New("no history database configured (use --history or history.path)")
)

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	flagCheckpointDir: "checkpoint.directory",
	flagFormat:        "checkpoint.format",
	flagRetention:     "checkpoint.retention",
	flagDLQ:           "dlq.path",
	flagHistory:       "history.path",
}

// loadSettings merges defaults, the config file, environment and flags
// into a config.Config.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	v := viper.New()

	v.SetDefault("checkpoint.directory", defaultCheckpointDir)
	v.SetDefault("checkpoint.format", "json")
	v.SetDefault("checkpoint.retention", 1)
	v.SetDefault("dlq.path", "")
	v.SetDefault("dlq.mode", "strict")
	v.SetDefault("history.path", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	flags := cmd.Flags()
	for flag, key := range flagKeys {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return config.Config{}, fmt.Errorf("bind --%s: %w", flag, err)
			}
		}
	}

	// The file is parsed by the library loader so ${VAR} references
	// expand the same way they do for embedding programs.
	if path, _ := flags.GetString(flagConfig); path != "" {
		file, err := config.FromFile(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := v.MergeConfigMap(file.Raw()); err != nil {
			return config.Config{}, fmt.Errorf("merge config: %w", err)
		}
	}

	// Unchanged flags fall through to env, file and defaults.
	return config.New(v.AllSettings()), nil
}

// newLogger returns a debug logger on stderr when --verbose is set.
func newLogger(cmd *cobra.Command) *slog.Logger {
	if verbose, _ := cmd.Flags().GetBool(flagVerbose); verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return nil
}
