package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/examplerun/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit    int
		taskPath string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs, or the outcomes of one script",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			base, err := filepath.Abs(baseDir)
			if err != nil {
				return fmt.Errorf("resolve base dir: %w", err)
			}
			dbPath := filepath.Join(resolvePath(base, settings.ReportDir), history.DBFile)
			if _, err := os.Stat(dbPath); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}

			store, err := history.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer func() { _ = store.Close() }()

			if taskPath != "" {
				records, err := store.TaskHistory(cmd.Context(), filepath.ToSlash(taskPath), limit)
				if err != nil {
					return err
				}
				printTaskHistory(cmd.OutOrStdout(), taskPath, records)
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries to show (0 for all)")
	cmd.Flags().StringVar(&taskPath, "task", "", "show the outcomes of one script (path as reported by run)")

	return cmd
}

func printRuns(w io.Writer, runs []history.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tTOTAL\tPASSED\tFAILED\tRATE\tDURATION")
	for _, r := range runs {
		rate := "n/a"
		if r.Total > 0 {
			rate = fmt.Sprintf("%.1f%%", r.SuccessRate())
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Total, r.Passed, r.Failed, rate,
			r.Duration.Round(100*time.Millisecond))
	}
	_ = tw.Flush()
}

func printTaskHistory(w io.Writer, path string, records []history.TaskRecord) {
	if len(records) == 0 {
		fmt.Fprintf(w, "No recorded outcomes for %s.\n", path)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tRESULT\tREASON\tDURATION")
	for _, r := range records {
		result := "pass"
		if !r.Success {
			result = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), result, r.Reason,
			r.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
}
