package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/config"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/dlq"
)

func newDLQCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect a dead-letter queue file",
	}
	cmd.AddCommand(newDLQListCommand())
	cmd.AddCommand(newDLQClearCommand())
	return cmd
}

func openQueue(cmd *cobra.Command) (*dlq.Queue, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	path := settings.String("dlq.path", "")
	if path == "" {
		return nil, ErrNoDLQPath
	}
	opts, err := config.DLQOptions(settings)
	if err != nil {
		return nil, err
	}
	opts = append(opts, dlq.WithLogger(newLogger(cmd)))
	return dlq.Open(path, opts...)
}

func newDLQListCommand() *cobra.Command {
	var errWidth int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			entries := q.Entries()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No dead letters in %s\n", q.Path())
				return nil
			}

			tbl := newTable(out, "ID", "INDEX", "ATTEMPTS", "ERROR TYPE", "ERROR", "FAILED")
			for _, e := range entries {
				tbl.AppendRow([]any{
					e.ID,
					e.Index,
					e.Attempts,
					e.ErrorType,
					truncate(e.Error, errWidth),
					humanize.Time(e.FailedAt),
				})
			}
			tbl.Render()
			fmt.Fprintf(out, "%d item(s)\n", len(entries))
			return nil
		},
	}

	cmd.Flags().IntVar(&errWidth, "error-width", 60, "Truncate error messages to this many characters")
	return cmd
}

func newDLQClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every dead-lettered item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := openQueue(cmd)
			if err != nil {
				return err
			}
			n := q.Len()
			if err := q.Clear(); err != nil {
				return err
			}
			// Best-effort mode only logs write failures.
			if err := q.Persist(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d item(s) from %s\n", n, q.Path())
			return nil
		},
	}
}
