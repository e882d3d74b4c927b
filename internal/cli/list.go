package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the scripts a run would execute",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			base, err := filepath.Abs(baseDir)
			if err != nil {
				return fmt.Errorf("resolve base dir: %w", err)
			}
			roots, err := resolveRoots(base, settings)
			if err != nil {
				return err
			}
			tasks, err := discoverTasks(base, roots, settings)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, t := range tasks {
				if t.HasInput() {
					fmt.Fprintf(out, "%s  (stdin)\n", t.ID)
				} else {
					fmt.Fprintln(out, t.ID)
				}
			}
			return nil
		},
	}
}
