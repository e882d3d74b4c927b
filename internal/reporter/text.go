package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/examplerun/internal/task"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
)

// TextReporter writes human-readable output to a writer. Progress methods
// are called from pool workers, so every write holds the mutex.
type TextReporter struct {
	w     io.Writer
	color bool
	mu    sync.Mutex
}

// NewTextReporter creates a text reporter.
// If w is nil, defaults to os.Stdout.
// color enables ANSI codes.
func NewTextReporter(w io.Writer, color bool) *TextReporter {
	if w == nil {
		w = os.Stdout
	}
	return &TextReporter{w: w, color: color}
}

// PrintHeader writes the initial banner.
func (r *TextReporter) PrintHeader(totalTasks, workers int, timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "examplerun — %d scripts, %d workers, %s timeout\n\n", totalTasks, workers, timeout)
}

// TaskStarted writes the start line for t.
func (r *TextReporter) TaskStarted(t *task.Task, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s[%d/%d] ▶ %s%s\n", r.c(colorDim), t.Index+1, total, t.ID, r.c(colorReset))
}

// TaskFinished writes the pass/fail line for res.
func (r *TextReporter) TaskFinished(res *task.TaskResult, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dur := res.Duration.Round(time.Millisecond)
	if res.Success {
		fmt.Fprintf(r.w, "[%d/%d] %s✓%s %s (%s)\n", res.Index+1, total, r.c(colorGreen), r.c(colorReset), res.Path, dur)
		return
	}
	fmt.Fprintf(r.w, "[%d/%d] %s✗%s %s (%s) %s%s%s\n", res.Index+1, total,
		r.c(colorRed), r.c(colorReset), res.Path, dur,
		r.c(colorDim), reasonLabel(res), r.c(colorReset))
}

// PrintSummary writes the aggregate block.
func (r *TextReporter) PrintSummary(report *task.RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rate := "n/a"
	if report.TotalTasks > 0 {
		rate = fmt.Sprintf("%.1f%%", report.SuccessRate)
	}
	secs := report.TotalDuration.Seconds()

	fmt.Fprintf(r.w, "\n%s--- Summary ---%s\n", r.c(colorCyan), r.c(colorReset))
	fmt.Fprintf(r.w, "Total:        %d\n", report.TotalTasks)
	fmt.Fprintf(r.w, "%sPassed:       %d%s\n", r.c(colorGreen), report.Passed, r.c(colorReset))
	fmt.Fprintf(r.w, "%sFailed:       %d%s\n", r.c(colorRed), report.Failed, r.c(colorReset))
	fmt.Fprintf(r.w, "Success rate: %s\n", rate)
	fmt.Fprintf(r.w, "Duration:     %.1fs (%.1f min)\n", secs, secs/60)
}

// PrintFailures lists every failed script with the first lines of its error.
func (r *TextReporter) PrintFailures(report *task.RunReport, lines int) {
	failures := report.Failures()
	if len(failures) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "\n%sFailed scripts (%d):%s\n", r.c(colorRed), len(failures), r.c(colorReset))
	for _, res := range failures {
		fmt.Fprintf(r.w, "\n  %s✗ %s%s\n", r.c(colorRed), res.Path, r.c(colorReset))
		if res.ConnectivityError != "" {
			fmt.Fprintf(r.w, "    %s(%s)%s\n", r.c(colorYellow), res.ConnectivityError, r.c(colorReset))
		}
		for _, line := range Excerpt(res.Error, lines) {
			fmt.Fprintf(r.w, "    %s\n", line)
		}
	}
}

// PrintPlan writes the discovered scripts without running anything.
func (r *TextReporter) PrintPlan(tasks []task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "Execution plan (dry-run): %d scripts\n\n", len(tasks))
	for _, t := range tasks {
		stdin := ""
		if t.HasInput() {
			stdin = fmt.Sprintf("  %s(stdin: %d bytes)%s", r.c(colorDim), len(t.Input), r.c(colorReset))
		}
		fmt.Fprintf(r.w, "  %3d. %s%s\n", t.Index+1, t.ID, stdin)
	}
}

// PrintSkipped notes a run with nothing to do.
func (r *TextReporter) PrintSkipped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s%s%s\n", r.c(colorYellow), reason, r.c(colorReset))
}

func (r *TextReporter) c(code string) string {
	if !r.color {
		return ""
	}
	return code
}

// Excerpt returns at most n non-empty lines of text. n <= 0 means all.
func Excerpt(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// reasonLabel is the short cause shown on a finish line.
func reasonLabel(res *task.TaskResult) string {
	switch res.Reason {
	case task.ReasonTimeout, task.ReasonIdle, task.ReasonSpawn:
		return res.Error
	case "":
		return ""
	}
	if res.ConnectivityError != "" {
		return string(res.Reason) + ": " + res.ConnectivityError
	}
	return string(res.Reason)
}
