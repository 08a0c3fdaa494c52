package commands

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/parallelkit/pkg/parallelkit/config"
	"github.com/randalmurphal/parallelkit/pkg/parallelkit/history"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryCompareCommand())
	cmd.AddCommand(newHistoryDeleteCommand())
	return cmd
}

func openHistory(cmd *cobra.Command) (*history.SQLiteStore, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	path := config.HistoryPath(settings)
	if path == "" {
		return nil, ErrNoHistoryPath
	}
	return history.NewSQLiteStore(path)
}

func newHistoryListCommand() *cobra.Command {
	var (
		name  string
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := &history.ListFilter{Name: name, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			runs, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			tbl := newTable(out, "ID", "NAME", "STARTED", "DURATION", "ITEMS", "FAILED", "RESUMED", "ITEMS/S")
			for _, r := range runs {
				tbl.AppendRow([]any{
					r.ID,
					r.Name,
					humanize.Time(r.StartedAt),
					formatDuration(r.Duration),
					humanize.Comma(int64(r.TotalItems)),
					r.Failed,
					r.Resumed,
					fmt.Sprintf("%.1f", r.Throughput()),
				})
			}
			tbl.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Only runs with this name")
	cmd.Flags().DurationVar(&since, "since", 0, "Only runs started within this window (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 = all)")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			tbl := newTable(cmd.OutOrStdout(), "FIELD", "VALUE")
			tbl.AppendRow([]any{"id", r.ID})
			tbl.AppendRow([]any{"name", r.Name})
			tbl.AppendRow([]any{"started", r.StartedAt.Format(time.RFC3339)})
			tbl.AppendRow([]any{"duration", formatDuration(r.Duration)})
			tbl.AppendRow([]any{"items", r.TotalItems})
			tbl.AppendRow([]any{"succeeded", r.Succeeded})
			tbl.AppendRow([]any{"failed", r.Failed})
			tbl.AppendRow([]any{"resumed", r.Resumed})
			tbl.AppendRow([]any{"success rate", fmt.Sprintf("%.1f%%", 100*r.SuccessRate())})
			tbl.AppendRow([]any{"throughput", fmt.Sprintf("%.1f items/s", r.Throughput())})
			tbl.AppendRow([]any{"workers", r.WorkerCount})
			tbl.AppendRow([]any{"batch size", r.BatchSize})
			tbl.AppendRow([]any{"executor", r.Executor})
			for _, key := range slices.Sorted(maps.Keys(r.Metadata)) {
				tbl.AppendRow([]any{"metadata." + key, r.Metadata[key]})
			}
			tbl.Render()
			return nil
		},
	}
}

func newHistoryCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare BASELINE CANDIDATE",
		Short: "Compare two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			cmp, err := history.Compare(cmd.Context(), store, args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tbl := newTable(out, "", "BASELINE", "CANDIDATE")
			tbl.AppendRow([]any{"id", cmp.Baseline.ID, cmp.Candidate.ID})
			tbl.AppendRow([]any{"name", cmp.Baseline.Name, cmp.Candidate.Name})
			tbl.AppendRow([]any{"duration", formatDuration(cmp.Baseline.Duration), formatDuration(cmp.Candidate.Duration)})
			tbl.AppendRow([]any{"items/s",
				fmt.Sprintf("%.1f", cmp.BaselineThroughput),
				fmt.Sprintf("%.1f", cmp.CandidateThroughput)})
			tbl.AppendRow([]any{"success rate",
				fmt.Sprintf("%.1f%%", 100*cmp.Baseline.SuccessRate()),
				fmt.Sprintf("%.1f%%", 100*cmp.Candidate.SuccessRate())})
			tbl.AppendRow([]any{"workers", cmp.Baseline.WorkerCount, cmp.Candidate.WorkerCount})
			tbl.Render()

			fmt.Fprintf(out, "\nSpeedup: %.2fx  Success rate delta: %+.1f%%\n",
				cmp.Speedup, 100*cmp.SuccessRateDelta)
			return nil
		},
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete recorded runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		},
	}
}
