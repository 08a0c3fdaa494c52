// Package commands implements the parallelkit CLI: inspection and
// maintenance of checkpoints, dead-letter queues and run history.
package commands

import (
	"github.com/spf13/cobra"
)

// Persistent flag names. Each one is bound to the config key in
// flagKeys.
const (
	flagConfig        = "config"
	flagCheckpointDir = "checkpoint-dir"
	flagFormat        = "format"
	flagRetention     = "retention"
	flagDLQ           = "dlq"
	flagHistory       = "history"
	flagVerbose       = "verbose"
)

// NewRootCommand builds the parallelkit command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "parallelkit",
		Short: "Inspect checkpoints, dead letters and run history",
		Long: `parallelkit operates on the files a parallel map leaves behind.

Settings come from flags, PARALLELKIT_* environment variables
(PARALLELKIT_CHECKPOINT_DIRECTORY, PARALLELKIT_DLQ_PATH, ...) and an
optional YAML or JSON config file, in that order of precedence.

Commands:
  checkpoints  List, show and delete versioned checkpoints
  dlq          List and clear a dead-letter queue
  history      List, show, compare and delete recorded runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String(flagConfig, "", "Config file (yaml or json)")
	pf.String(flagCheckpointDir, "", "Checkpoint directory (default: "+defaultCheckpointDir+")")
	pf.String(flagFormat, "", "Checkpoint format (json, binary)")
	pf.Int(flagRetention, 1, "Retained checkpoint versions")
	pf.String(flagDLQ, "", "Dead-letter queue file")
	pf.String(flagHistory, "", "Run history database")
	pf.BoolP(flagVerbose, "v", false, "Debug logging to stderr")

	root.AddCommand(newCheckpointsCommand())
	root.AddCommand(newDLQCommand())
	root.AddCommand(newHistoryCommand())

	return root
}
