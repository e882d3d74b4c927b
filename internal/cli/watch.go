package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/ppiankov/examplerun/internal/config"
	"github.com/ppiankov/examplerun/internal/discover"
	"github.com/ppiankov/examplerun/internal/sentinel"
)

func newWatchCmd() *cobra.Command {
	var (
		poll     bool
		debounce time.Duration
		initial  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run example scripts as they are edited",
		Long:  "Watch monitors the chapter roots and re-runs every changed script through the same executor as run. Stop with Ctrl-C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), watchOptions{
				settings: settings,
				baseDir:  baseDir,
				poll:     poll,
				debounce: debounce,
				initial:  initial,
				out:      cmd.OutOrStdout(),
				color:    isTerminal(),
			})
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "poll modification times instead of using filesystem events")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "quiet period before a batch of edits is re-run")
	cmd.Flags().BoolVar(&initial, "initial", false, "run every script once before watching")

	return cmd
}

type watchOptions struct {
	settings *config.Settings
	baseDir  string
	poll     bool
	debounce time.Duration
	initial  bool
	out      io.Writer
	color    bool
}

func runWatch(ctx context.Context, opts watchOptions) error {
	base, err := filepath.Abs(opts.baseDir)
	if err != nil {
		return fmt.Errorf("resolve base dir: %w", err)
	}
	roots, err := resolveRoots(base, opts.settings)
	if err != nil {
		return err
	}

	scriptOpts := discover.Options{Extensions: opts.settings.Extensions, Exclude: opts.settings.Exclude}
	rerun := func(ctx context.Context, ids []string) {
		_, err := executeRun(ctx, runOptions{
			settings: opts.settings,
			baseDir:  base,
			tuiMode:  "off",
			ids:      ids,
			out:      opts.out,
			color:    opts.color,
		})
		if err != nil {
			slog.Error("watch run failed", "error", err)
		}
	}

	s, err := sentinel.New(sentinel.Config{
		Roots: roots,
		IsScript: func(name string) bool {
			return scriptOpts.Runnable(name) && !scriptOpts.Excluded(name)
		},
		SkipDir:  scriptOpts.Excluded,
		Debounce: opts.debounce,
		PollMode: opts.poll,
		OnChange: func(ctx context.Context, paths []string) {
			ids := changedIDs(base, paths)
			fmt.Fprintf(opts.out, "\n%d script(s) changed, re-running\n", len(ids))
			rerun(ctx, ids)
		},
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				slog.Debug("termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Script watcher.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				if opts.initial {
					rerun(ctx, nil)
				}
				fmt.Fprintf(opts.out, "Watching %d root(s) for changes (Ctrl-C to stop)\n", len(roots))
				return s.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// changedIDs maps absolute script paths to task IDs relative to base.
func changedIDs(base string, paths []string) []string {
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(base, p)
		if err != nil {
			rel = p
		}
		ids = append(ids, filepath.ToSlash(rel))
	}
	return ids
}
