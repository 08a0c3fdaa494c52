package commands

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/checkpoint"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/config"
)

func newCheckpointsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoints",
		Aliases: []string{"checkpoint", "ckpt"},
		Short:   "Manage versioned checkpoints",
	}
	cmd.AddCommand(newCheckpointsListCommand())
	cmd.AddCommand(newCheckpointsShowCommand())
	cmd.AddCommand(newCheckpointsDeleteCommand())
	return cmd
}

// openManager builds a manager over the configured checkpoint directory.
// Results stay raw JSON; the CLI never needs their Go type.
func openManager(cmd *cobra.Command) (*checkpoint.Manager[json.RawMessage], error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	policy, err := config.Policy(settings)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewManager[json.RawMessage](policy, checkpoint.WithLogger(newLogger(cmd)))
}

func newCheckpointsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints in the checkpoint directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}

			names, err := m.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(out, "No checkpoints in %s\n", m.Policy().Directory)
				return nil
			}

			tbl := newTable(out, "NAME", "VERSIONS", "SIZE", "UPDATED")
			for _, name := range names {
				infos, err := m.Info(name)
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					continue
				}
				var total uint64
				for _, info := range infos {
					total += uint64(info.Size)
				}
				tbl.AppendRow([]any{
					name,
					len(infos),
					humanize.Bytes(total),
					humanize.Time(infos[0].ModTime),
				})
			}
			tbl.Render()
			return nil
		},
	}
}

func newCheckpointsShowCommand() *cobra.Command {
	var (
		version     int
		showResults bool
	)

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Show one checkpoint's progress and files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			name := args[0]
			out := cmd.OutOrStdout()

			infos, err := m.Info(name)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				return fmt.Errorf("checkpoint %q not found in %s", name, m.Policy().Directory)
			}

			files := newTable(out, "VERSION", "PATH", "SIZE", "MODIFIED")
			for _, info := range infos {
				files.AppendRow([]any{
					versionLabel(info.Version),
					info.Path,
					humanize.Bytes(uint64(info.Size)),
					humanize.Time(info.ModTime),
				})
			}
			files.Render()

			// Binary results can only be decoded with their Go type.
			if m.Policy().Format != checkpoint.FormatJSON {
				fmt.Fprintf(out, "\nRecord contents are not shown for %s checkpoints.\n", m.Policy().Format)
				return nil
			}

			rec, err := m.LoadVersion(name, version)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("checkpoint %q has no %s file", name, versionLabel(version))
			}

			fmt.Fprintln(out)
			summary := newTable(out, "FIELD", "VALUE")
			summary.AppendRow([]any{"completed", fmt.Sprintf("%s / %s (%.1f%%)",
				humanize.Comma(int64(rec.Len())), humanize.Comma(int64(rec.TotalItems)),
				percent(rec.Len(), rec.TotalItems))})
			summary.AppendRow([]any{"saved", humanize.Time(rec.Time())})
			summary.AppendRow([]any{"workers", rec.WorkerCount})
			summary.AppendRow([]any{"batch size", rec.BatchSize})
			for _, key := range slices.Sorted(maps.Keys(rec.Metadata)) {
				summary.AppendRow([]any{"metadata." + key, rec.Metadata[key]})
			}
			summary.Render()

			if showResults {
				fmt.Fprintln(out)
				results := newTable(out, "INDEX", "RESULT")
				for k, idx := range rec.CompletedIndices {
					results.AppendRow([]any{idx, truncate(string(rec.Results[k]), 80)})
				}
				results.Render()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Version to show (0 = current)")
	cmd.Flags().BoolVar(&showResults, "results", false, "Also print completed results")
	return cmd
}

func newCheckpointsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME...",
		Short: "Delete checkpoints and all their retained versions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			for _, name := range args {
				removed, err := m.Delete(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d file(s)\n", name, removed)
			}
			return nil
		},
	}
}

func versionLabel(v int) string {
	if v == 0 {
		return "current"
	}
	return "v" + strconv.Itoa(v)
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}
