package task

import (
	"time"
)

// TaskState represents the execution state of a task.
type TaskState int

const (
	StatePending TaskState = iota
	StateRunning
	StatePassed
	StateFailed
)

func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StatePassed:
		return "PASSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Reason classifies why a task failed.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonSpawn     Reason = "spawn"     // executable could not be launched
	ReasonExit      Reason = "exit"      // non-zero exit status
	ReasonSignature Reason = "signature" // clean exit, error text on stderr
	ReasonTimeout   Reason = "timeout"   // wall-clock budget exceeded
	ReasonIdle      Reason = "idle"      // no output for the idle window
	ReasonCanceled  Reason = "canceled"  // run interrupted before or during the task
	ReasonPanic     Reason = "panic"     // exec function panicked
)

// Task is a single runnable script found during discovery.
// It is never mutated after discovery.
type Task struct {
	Index int    `json:"index"`
	ID    string `json:"id"`   // display path, relative to the working directory
	Path  string `json:"path"` // path handed to the interpreter
	Input string `json:"input,omitempty"`
}

// HasInput reports whether canned stdin was resolved for the task.
func (t *Task) HasInput() bool {
	return t.Input != ""
}

// TaskResult captures the outcome of executing a single task.
type TaskResult struct {
	Index    int           `json:"index"`
	Path     string        `json:"path"`
	State    TaskState     `json:"state"`
	Success  bool          `json:"success"`
	Reason   Reason        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	ExitCode int           `json:"exit_code"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"-"`

	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	EndedAt    time.Time `json:"ended_at,omitempty"`

	ConnectivityError string `json:"connectivity_error,omitempty"` // DNS/TLS/auth classification of stderr
}

// Passed returns a successful result for t.
func Passed(t *Task, start time.Time) *TaskResult {
	return finish(t, start, StatePassed, ReasonNone, "")
}

// Failed returns a failed result for t.
func Failed(t *Task, start time.Time, reason Reason, msg string) *TaskResult {
	return finish(t, start, StateFailed, reason, msg)
}

func finish(t *Task, start time.Time, state TaskState, reason Reason, msg string) *TaskResult {
	end := time.Now()
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	return &TaskResult{
		Index:      t.Index,
		Path:       t.ID,
		State:      state,
		Success:    state == StatePassed,
		Reason:     reason,
		Error:      msg,
		StartedAt:  start,
		EndedAt:    end,
		Duration:   d,
		DurationMS: d.Milliseconds(),
	}
}

// RunReport is the final output of a validation run.
type RunReport struct {
	RunID         string        `json:"run_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Roots         []string      `json:"roots"`
	Workers       int           `json:"workers"`
	Timeout       time.Duration `json:"timeout"`
	Results       []*TaskResult `json:"results"`
	TotalTasks    int           `json:"total_tasks"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	SuccessRate   float64       `json:"success_rate"` // percent, 0 when no tasks ran
	TotalDuration time.Duration `json:"total_duration"`
}

// NewRunReport derives the summary counters from results.
func NewRunReport(runID string, roots []string, workers int, timeout time.Duration, results []*TaskResult, duration time.Duration) *RunReport {
	report := &RunReport{
		RunID:         runID,
		Timestamp:     time.Now(),
		Roots:         roots,
		Workers:       workers,
		Timeout:       timeout,
		Results:       results,
		TotalTasks:    len(results),
		TotalDuration: duration,
	}
	for _, r := range results {
		if r != nil && r.Success {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	if report.TotalTasks > 0 {
		report.SuccessRate = float64(report.Passed) / float64(report.TotalTasks) * 100
	}
	return report
}

// Failures returns the failed results in discovery order.
func (r *RunReport) Failures() []*TaskResult {
	var out []*TaskResult
	for _, res := range r.Results {
		if res != nil && !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// ExitCode is the process status CI consumes: 1 when any task failed.
func (r *RunReport) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}
