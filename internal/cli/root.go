package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/examplerun/internal/config"
)

// Version, Commit and BuildDate are set via LDFLAGS at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	verbose    bool
	configFile string
	baseDir    string
)

// NewRootCmd builds the command tree. Invoked without a subcommand it
// performs a full validation pass, the same as run.
func NewRootCmd() *cobra.Command {
	var f runFlags

	root := &cobra.Command{
		Use:   "examplerun",
		Short: "Parallel validation harness for course example scripts",
		Long: "examplerun discovers the runnable example scripts of a course repository, executes each one " +
			"in its own process with a timeout and bounded parallelism, and reports which of them fail. " +
			"Without a subcommand it runs every script and exits non-zero when any of them failed.",
		RunE: runE(&f),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&configFile, "config", config.DefaultFile, "path to config file")
	root.PersistentFlags().StringVarP(&baseDir, "dir", "C", ".", "course repository root containing the numbered chapters")

	addRunFlags(root, &f)

	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// loadSettings reads the config file. Without --config the default file is
// looked up inside the course directory.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	path := configFile
	if !cmd.Flags().Changed("config") {
		path = filepath.Join(baseDir, config.DefaultFile)
	}
	s, err := config.LoadSettings(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return s, nil
}
