package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ppiankov/examplerun/internal/config"
	"github.com/ppiankov/examplerun/internal/discover"
	"github.com/ppiankov/examplerun/internal/history"
	"github.com/ppiankov/examplerun/internal/input"
	"github.com/ppiankov/examplerun/internal/reporter"
	"github.com/ppiankov/examplerun/internal/runner"
	"github.com/ppiankov/examplerun/internal/task"
	"github.com/ppiankov/examplerun/internal/telemetry"
)

// runFlags are the run command's overrides of config settings.
type runFlags struct {
	workers     int
	timeout     time.Duration
	idleTimeout time.Duration
	roots       []string
	onlyFailed  bool
	dryRun      bool
	tuiMode     string
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute every example script and report failures",
		RunE:  runE(&f),
	}
	addRunFlags(cmd, &f)

	return cmd
}

// addRunFlags registers the run overrides on cmd. The root command carries
// them too, so a bare invocation behaves like run.
func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().IntVar(&f.workers, "workers", 10, "max scripts running at once")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 90*time.Second, "per-script timeout")
	cmd.Flags().DurationVar(&f.idleTimeout, "idle-timeout", 0, "kill a script after no output for this duration (0 disables)")
	cmd.Flags().StringSliceVar(&f.roots, "root", nil, "directory to scan instead of the chapter roots (repeatable)")
	cmd.Flags().BoolVar(&f.onlyFailed, "only-failed", false, "rerun only the scripts that failed in the previous run")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "list the scripts that would run without executing them")
	cmd.Flags().StringVar(&f.tuiMode, "tui", "auto", "display mode: full (interactive TUI), off (line per script), auto (detect TTY)")
}

func runE(f *runFlags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd, settings, *f); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case <-sigCh:
				fmt.Fprintln(os.Stderr, "\ninterrupted, stopping running scripts...")
				cancel()
			case <-ctx.Done():
			}
		}()

		report, err := executeRun(ctx, runOptions{
			settings:   settings,
			baseDir:    baseDir,
			onlyFailed: f.onlyFailed,
			dryRun:     f.dryRun,
			tuiMode:    f.tuiMode,
			out:        cmd.OutOrStdout(),
			color:      isTerminal(),
		})
		if err != nil {
			return err
		}
		if report != nil && report.Failed > 0 {
			return fmt.Errorf("%d of %d scripts failed", report.Failed, report.TotalTasks)
		}
		return nil
	}
}

// applyRunFlags overrides settings with flags the user set explicitly.
func applyRunFlags(cmd *cobra.Command, s *config.Settings, f runFlags) error {
	if cmd.Flags().Changed("workers") {
		if f.workers < 1 {
			return fmt.Errorf("--workers must be at least 1, got %d", f.workers)
		}
		s.Workers = f.workers
	}
	if cmd.Flags().Changed("timeout") {
		if f.timeout <= 0 {
			return fmt.Errorf("--timeout must be positive, got %s", f.timeout)
		}
		s.Timeout = f.timeout
	}
	if cmd.Flags().Changed("idle-timeout") {
		if f.idleTimeout < 0 {
			return fmt.Errorf("--idle-timeout must not be negative, got %s", f.idleTimeout)
		}
		s.IdleTimeout = f.idleTimeout
	}
	if cmd.Flags().Changed("root") {
		s.Roots = f.roots
	}
	switch f.tuiMode {
	case "", "auto", "full", "off":
	default:
		return fmt.Errorf("--tui must be auto, full or off, got %q", f.tuiMode)
	}
	return nil
}

// runOptions configures one validation pass.
type runOptions struct {
	settings   *config.Settings
	baseDir    string
	onlyFailed bool
	dryRun     bool
	tuiMode    string
	ids        []string // restrict to these task IDs; nil runs everything
	out        io.Writer
	color      bool
}

// executeRun is the shared execution core of the run and watch commands.
// It returns a nil report for a dry run or an empty rerun selection.
func executeRun(ctx context.Context, opts runOptions) (*task.RunReport, error) {
	s := opts.settings
	base, err := filepath.Abs(opts.baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}

	roots, err := resolveRoots(base, s)
	if err != nil {
		return nil, err
	}
	tasks, err := discoverTasks(base, roots, s)
	if err != nil {
		return nil, err
	}

	reportDir := resolvePath(base, s.ReportDir)
	if opts.onlyFailed {
		tasks, err = selectLastFailed(ctx, reportDir, tasks)
		if err != nil {
			return nil, err
		}
	}
	if opts.ids != nil {
		tasks = discover.Select(tasks, opts.ids)
	}

	textRep := reporter.NewTextReporter(opts.out, opts.color)
	if opts.dryRun {
		textRep.PrintPlan(tasks)
		return nil, nil
	}
	if len(tasks) == 0 && opts.onlyFailed {
		textRep.PrintSkipped("No failed scripts in the last run, nothing to rerun.")
		return nil, nil
	}
	if len(tasks) == 0 && opts.ids != nil {
		textRep.PrintSkipped("No matching scripts to run.")
		return nil, nil
	}

	runID := history.NewRunID()
	lock, err := runner.AcquireRunLock(reportDir, runID)
	if err != nil {
		return nil, fmt.Errorf("start run %s: %w", runID, err)
	}
	defer lock.Release()

	exec, err := buildExecutor(base, s)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "examplerun",
		ServiceVersion: Version,
		OTLPEndpoint:   s.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			slog.Warn("telemetry flush failed", "error", err)
		}
	}()

	slog.Info("starting run", "run", runID, "scripts", len(tasks), "workers", s.Workers, "roots", len(roots))
	textRep.PrintHeader(len(tasks), s.Workers, s.Timeout)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runCtx, runSpan := telemetry.StartRun(runCtx, runID, len(tasks), s.Workers)

	full := displayMode(opts.tuiMode, opts.color) == "full" && len(tasks) > 0
	poolCfg := task.PoolConfig{
		Workers: s.Workers,
		ExecFn:  telemetry.TraceExec(exec.Run),
	}
	if !full {
		poolCfg.OnStart = textRep.TaskStarted
		poolCfg.OnFinish = textRep.TaskFinished
	}
	pool := task.NewPool(tasks, poolCfg)
	stopInterruptLog := context.AfterFunc(runCtx, func() {
		c := pool.Counters()
		slog.Warn("run canceled", "run", runID, "completed", c.Completed, "in_flight", c.InFlight, "total", c.Total)
	})
	defer stopInterruptLog()

	var tuiDone chan struct{}
	var tuiProgram *tea.Program
	if full {
		tuiProgram = tea.NewProgram(reporter.NewTUIModel(pool.Snapshot, cancelRun), tea.WithAltScreen())
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := tuiProgram.Run(); err != nil {
				slog.Warn("TUI error", "error", err)
			}
		}()
	}

	start := time.Now()
	results := pool.Run(runCtx)
	totalDuration := time.Since(start)

	if tuiProgram != nil {
		tuiProgram.Send(reporter.DoneMsg{})
		<-tuiDone
	}

	report := task.NewRunReport(runID, displayRoots(base, roots), s.Workers, s.Timeout, results, totalDuration)
	telemetry.EndRun(runSpan, report)

	textRep.PrintSummary(report)
	textRep.PrintFailures(report, s.ExcerptLines)

	runDir := filepath.Join(reportDir, "runs", runID)
	if err := writeReports(report, runDir); err != nil {
		slog.Warn("failed to write reports", "error", err)
	} else {
		fmt.Fprintf(opts.out, "\nReport: %s\n", filepath.Join(runDir, "report.json"))
	}

	if s.History {
		if err := recordHistory(ctx, reportDir, report); err != nil {
			slog.Warn("failed to record run history", "error", err)
		}
	}

	return report, nil
}

// resolveRoots returns the configured roots made absolute, or the chapter
// roots derived from base.
func resolveRoots(base string, s *config.Settings) ([]string, error) {
	if len(s.Roots) > 0 {
		roots := make([]string, 0, len(s.Roots))
		for _, r := range s.Roots {
			roots = append(roots, resolvePath(base, r))
		}
		return roots, nil
	}
	roots, err := discover.ChapterRoots(base, s.ChapterSubdirs)
	if err != nil {
		return nil, fmt.Errorf("discover chapters: %w", err)
	}
	return roots, nil
}

func discoverTasks(base string, roots []string, s *config.Settings) ([]task.Task, error) {
	tasks, err := discover.Discover(roots, discover.Options{
		Extensions: s.Extensions,
		Exclude:    s.Exclude,
		Inputs:     input.Table(s.Inputs),
		BaseDir:    base,
	})
	if err != nil {
		return nil, fmt.Errorf("discover scripts: %w", err)
	}
	slog.Debug("discovered scripts", "count", len(tasks), "roots", len(roots))
	return tasks, nil
}

// selectLastFailed narrows tasks to the previous run's failures. With no
// recorded run, every task is kept.
func selectLastFailed(ctx context.Context, reportDir string, tasks []task.Task) ([]task.Task, error) {
	store, err := history.Open(filepath.Join(reportDir, history.DBFile))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = store.Close() }()

	failed, err := store.LastFailed(ctx)
	if errors.Is(err, history.ErrNoRuns) {
		slog.Warn("no previous run recorded, running every script")
		return tasks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last failures: %w", err)
	}
	return discover.Select(tasks, failed), nil
}

func buildExecutor(base string, s *config.Settings) (*runner.Executor, error) {
	envFile := ""
	if s.EnvFile != "" {
		envFile = resolvePath(base, s.EnvFile)
	}
	env, err := runner.BuildEnv(os.Environ(), envFile, s.Env)
	if err != nil {
		return nil, err
	}
	sigs, err := runner.NewSignatures(s.FailurePatterns, s.IgnorePatterns)
	if err != nil {
		return nil, fmt.Errorf("compile patterns: %w", err)
	}
	return runner.NewExecutor(runner.ExecutorConfig{
		Command:     s.Command,
		Timeout:     s.Timeout,
		IdleTimeout: s.IdleTimeout,
		Env:         env,
		Dir:         base,
		Signatures:  sigs,
		Redact:      s.Redact,
	})
}

func writeReports(report *task.RunReport, runDir string) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := reporter.WriteJSONReport(report, filepath.Join(runDir, "report.json")); err != nil {
		return err
	}
	return reporter.WriteSARIFReport(report, filepath.Join(runDir, "report.sarif"))
}

func recordHistory(ctx context.Context, reportDir string, report *task.RunReport) error {
	store, err := history.Open(filepath.Join(reportDir, history.DBFile))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	// record even when the run was interrupted
	return store.RecordRun(context.WithoutCancel(ctx), report)
}

// displayMode resolves "auto" against whether stdout is a terminal.
func displayMode(mode string, tty bool) string {
	if mode == "" || mode == "auto" {
		if tty {
			return "full"
		}
		return "off"
	}
	return mode
}

func displayRoots(base string, roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if rel, err := filepath.Rel(base, r); err == nil {
			out = append(out, filepath.ToSlash(rel))
		} else {
			out = append(out, r)
		}
	}
	return out
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// isTerminal checks if stdout is a terminal.
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
