package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/ppiankov/examplerun/internal/task"
)

const (
	// DefaultTimeout is the per-script wall-clock budget.
	DefaultTimeout = 90 * time.Second

	defaultMaxOutput = 1 << 20
	outputTail       = 4 << 10

	// waitDelay bounds how long Wait blocks on pipes still held by
	// grandchildren after the script itself has exited or been killed.
	waitDelay = 2 * time.Second
)

// ExecutorConfig holds executor parameters.
type ExecutorConfig struct {
	Command     []string      // interpreter and leading args; the task path is appended
	Timeout     time.Duration // per-task wall-clock timeout
	IdleTimeout time.Duration // kill after this long without output; 0 disables
	Env         []string      // full child environment; nil inherits the parent's
	Dir         string        // working directory for every script
	Signatures  *Signatures   // stderr failure detection on clean exits
	Redact      bool          // scrub credentials from captured text
	MaxOutput   int           // bytes kept per stream (tail)
}

// Executor runs one script per call. It holds no per-run state and is safe
// to call from many workers at once.
type Executor struct {
	cfg ExecutorConfig
}

// NewExecutor validates cfg and fills defaults.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("executor command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Signatures == nil {
		cfg.Signatures = DefaultSignatures()
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = defaultMaxOutput
	}
	return &Executor{cfg: cfg}, nil
}

// Run executes t and classifies the outcome. It never returns nil.
func (e *Executor) Run(ctx context.Context, t *task.Task) *task.TaskResult {
	start := time.Now()
	if ctx.Err() != nil {
		return task.Failed(t, start, task.ReasonCanceled, "canceled before start")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	idle := newIdleWatch(e.cfg.IdleTimeout, cancel)
	defer idle.Stop()

	args := make([]string, 0, len(e.cfg.Command))
	args = append(args, e.cfg.Command[1:]...)
	args = append(args, t.Path)

	cmd := exec.CommandContext(runCtx, e.cfg.Command[0], args...)
	cmd.Dir = e.cfg.Dir
	cmd.Env = e.cfg.Env
	cmd.WaitDelay = waitDelay
	setupProcessGroup(cmd)

	stdout := newTailBuffer(e.cfg.MaxOutput)
	stderr := newTailBuffer(e.cfg.MaxOutput)
	cmd.Stdout = idle.Writer(stdout)
	cmd.Stderr = idle.Writer(stderr)
	if t.HasInput() {
		// exec copies the reader into the pipe and closes it at EOF
		cmd.Stdin = strings.NewReader(t.Input)
	}

	slog.Debug("spawning script", "task", t.ID, "command", e.cfg.Command[0], "stdin", t.HasInput())

	if err := cmd.Start(); err != nil {
		return task.Failed(t, start, task.ReasonSpawn, e.clean(err.Error()))
	}
	waitErr := cmd.Wait()
	idle.Stop()

	res := e.classify(ctx, runCtx, t, start, waitErr, idle.Idled(), stderr.String())
	res.Output = e.clean(tail(stdout.String(), outputTail))
	if !res.Success {
		res.ConnectivityError = DetectConnectivity(stderr.String())
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	slog.Debug("script finished", "task", t.ID, "state", res.State, "reason", res.Reason, "duration", res.Duration)
	return res
}

func (e *Executor) classify(ctx, runCtx context.Context, t *task.Task, start time.Time, waitErr error, idled bool, stderr string) *task.TaskResult {
	// a process group that outlived the script trips WaitDelay; the script's
	// own status still decides
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		waitErr = nil
	}

	if waitErr != nil {
		switch {
		case ctx.Err() != nil:
			return task.Failed(t, start, task.ReasonCanceled, "canceled: run interrupted")
		case idled:
			return task.Failed(t, start, task.ReasonIdle, fmt.Sprintf("no output for %s", e.cfg.IdleTimeout))
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return task.Failed(t, start, task.ReasonTimeout, fmt.Sprintf("timeout after %dms", e.cfg.Timeout.Milliseconds()))
		}

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if text := strings.TrimSpace(stderr); text != "" {
				return task.Failed(t, start, task.ReasonExit, e.clean(text))
			}
			if code := exitErr.ExitCode(); code >= 0 {
				return task.Failed(t, start, task.ReasonExit, fmt.Sprintf("exit code: %d", code))
			}
			return task.Failed(t, start, task.ReasonExit, exitErr.String())
		}
		return task.Failed(t, start, task.ReasonExit, e.clean(waitErr.Error()))
	}

	if _, found := e.cfg.Signatures.Match(stderr); found {
		text := strings.TrimSpace(e.cfg.Signatures.Filter(stderr))
		return task.Failed(t, start, task.ReasonSignature, e.clean(text))
	}
	return task.Passed(t, start)
}

func (e *Executor) clean(text string) string {
	if !e.cfg.Redact {
		return text
	}
	redacted, n := Redact(text)
	if n > 0 {
		slog.Warn("credentials redacted from script output", "count", n)
	}
	return redacted
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
