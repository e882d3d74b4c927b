//go:build !windows

package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/examplerun/internal/task"
)

// writeScript writes a shell script into a temp dir and returns a task for it.
func writeScript(t *testing.T, body string) *task.Task {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return &task.Task{ID: "01-intro/script.sh", Path: path}
}

func newShExecutor(t *testing.T, cfg ExecutorConfig) *Executor {
	t.Helper()
	cfg.Command = []string{"sh"}
	e, err := NewExecutor(cfg)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

func TestNewExecutor_RequiresCommand(t *testing.T) {
	if _, err := NewExecutor(ExecutorConfig{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestNewExecutor_Defaults(t *testing.T) {
	e, err := NewExecutor(ExecutorConfig{Command: []string{"sh"}})
	if err != nil {
		t.Fatal(err)
	}
	if e.cfg.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", e.cfg.Timeout, DefaultTimeout)
	}
	if e.cfg.Signatures == nil {
		t.Error("expected default signatures")
	}
}

func TestExecutor_Success(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "echo hello\n")

	res := e.Run(context.Background(), tk)
	if !res.Success || res.State != task.StatePassed {
		t.Fatalf("expected pass, got %+v", res)
	}
	if res.Error != "" {
		t.Errorf("error = %q, want empty", res.Error)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("output = %q, want hello", res.Output)
	}
	if res.Path != tk.ID {
		t.Errorf("path = %q, want %q", res.Path, tk.ID)
	}
}

func TestExecutor_NonZeroExitUsesStderr(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "echo 'boom happened' >&2\nexit 3\n")

	res := e.Run(context.Background(), tk)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Reason != task.ReasonExit {
		t.Errorf("reason = %q, want exit", res.Reason)
	}
	if res.Error != "boom happened" {
		t.Errorf("error = %q", res.Error)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestExecutor_NonZeroExitWithoutStderr(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "exit 7\n")

	res := e.Run(context.Background(), tk)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "exit code: 7" {
		t.Errorf("error = %q, want %q", res.Error, "exit code: 7")
	}
}

func TestExecutor_SilentFailureDetected(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "echo 'Error: model not found' >&2\nexit 0\n")

	res := e.Run(context.Background(), tk)
	if res.Success {
		t.Fatal("expected signature failure on clean exit")
	}
	if res.Reason != task.ReasonSignature {
		t.Errorf("reason = %q, want signature", res.Reason)
	}
	if !strings.Contains(res.Error, "model not found") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestExecutor_StdoutErrorIgnored(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "echo 'Error: this is a demo of error handling'\n")

	res := e.Run(context.Background(), tk)
	if !res.Success {
		t.Fatalf("stdout must not trip signatures: %+v", res)
	}
}

func TestExecutor_WarningsIgnored(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "echo '(node:123) ExperimentalWarning: Type Stripping is an experimental feature' >&2\n")

	res := e.Run(context.Background(), tk)
	if !res.Success {
		t.Fatalf("runtime warning must not fail the script: %+v", res)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 200 * time.Millisecond})
	tk := writeScript(t, "sleep 30\n")

	start := time.Now()
	res := e.Run(context.Background(), tk)
	elapsed := time.Since(start)

	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if res.Reason != task.ReasonTimeout {
		t.Errorf("reason = %q, want timeout", res.Reason)
	}
	if !strings.Contains(res.Error, "timeout after 200ms") {
		t.Errorf("error = %q", res.Error)
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout took %v, child was not killed promptly", elapsed)
	}
}

func TestExecutor_TimeoutKillsGrandchildren(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 200 * time.Millisecond})
	tk := writeScript(t, "sleep 30 &\nsleep 30\n")

	start := time.Now()
	res := e.Run(context.Background(), tk)
	if res.Reason != task.ReasonTimeout {
		t.Errorf("reason = %q, want timeout", res.Reason)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took %v, background child held the pipes", elapsed)
	}
}

func TestExecutor_SpawnFailure(t *testing.T) {
	e, err := NewExecutor(ExecutorConfig{Command: []string{"/nonexistent/interpreter-xyz"}})
	if err != nil {
		t.Fatal(err)
	}
	tk := &task.Task{ID: "x.ts", Path: "x.ts"}

	start := time.Now()
	res := e.Run(context.Background(), tk)
	if res.Success {
		t.Fatal("expected spawn failure")
	}
	if res.Reason != task.ReasonSpawn {
		t.Errorf("reason = %q, want spawn", res.Reason)
	}
	if res.Error == "" {
		t.Error("expected spawn error text")
	}
	if time.Since(start) > time.Second {
		t.Error("spawn failure should be immediate")
	}
}

func TestExecutor_CannedInput(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "read answer\necho \"got:$answer\"\n")
	tk.Input = "Paris\n"

	res := e.Run(context.Background(), tk)
	if !res.Success {
		t.Fatalf("expected pass, got %+v", res)
	}
	if !strings.Contains(res.Output, "got:Paris") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestExecutor_NoInputReadsEOF(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "if read answer; then echo read; else echo eof; fi\n")

	res := e.Run(context.Background(), tk)
	if !res.Success {
		t.Fatalf("expected pass, got %+v", res)
	}
	if !strings.Contains(res.Output, "eof") {
		t.Errorf("output = %q, want eof", res.Output)
	}
}

func TestExecutor_Env(t *testing.T) {
	env, err := BuildEnv(os.Environ(), "", map[string]string{"CI": "true"})
	if err != nil {
		t.Fatal(err)
	}
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second, Env: env})
	tk := writeScript(t, "echo \"ci=$CI\"\n")

	res := e.Run(context.Background(), tk)
	if !strings.Contains(res.Output, "ci=true") {
		t.Errorf("output = %q, want ci=true", res.Output)
	}
}

func TestExecutor_IdleTimeout(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 10 * time.Second, IdleTimeout: 200 * time.Millisecond})
	tk := writeScript(t, "echo start\nsleep 30\n")

	res := e.Run(context.Background(), tk)
	if res.Reason != task.ReasonIdle {
		t.Fatalf("reason = %q, want idle (%+v)", res.Reason, res)
	}
	if !strings.HasPrefix(res.Error, "no output for") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestExecutor_CanceledBeforeStart(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{})
	tk := writeScript(t, "echo never\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Run(ctx, tk)
	if res.Reason != task.ReasonCanceled {
		t.Errorf("reason = %q, want canceled", res.Reason)
	}
}

func TestExecutor_CanceledMidRun(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 10 * time.Second})
	tk := writeScript(t, "sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := e.Run(ctx, tk)
	if res.Reason != task.ReasonCanceled {
		t.Errorf("reason = %q, want canceled", res.Reason)
	}
}

func TestExecutor_RedactsStderr(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second, Redact: true})
	tk := writeScript(t, "echo 'auth failed for sk-abcdefghijklmnopqrstuvwxyz123456' >&2\nexit 1\n")

	res := e.Run(context.Background(), tk)
	if strings.Contains(res.Error, "sk-abcdef") {
		t.Errorf("key leaked into error: %q", res.Error)
	}
	if !strings.Contains(res.Error, redactPlaceholder) {
		t.Errorf("error = %q, want placeholder", res.Error)
	}
}

func TestExecutor_ConnectivityFlagged(t *testing.T) {
	e := newShExecutor(t, ExecutorConfig{Timeout: 5 * time.Second})
	tk := writeScript(t, "echo 'TypeError: fetch failed' >&2\nexit 1\n")

	res := e.Run(context.Background(), tk)
	if res.ConnectivityError != "request failed" {
		t.Errorf("connectivity = %q", res.ConnectivityError)
	}
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defgh"))
	if got := b.String(); got != "defgh" {
		t.Errorf("tail = %q, want defgh", got)
	}
}
