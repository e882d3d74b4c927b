package task

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestTaskState_String(t *testing.T) {
	tests := []struct {
		state TaskState
		want  string
	}{
		{StatePending, "PENDING"},
		{StateRunning, "RUNNING"},
		{StatePassed, "PASSED"},
		{StateFailed, "FAILED"},
		{TaskState(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("TaskState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestNewRunReport_Counts(t *testing.T) {
	tk := func(i int) *Task { return &Task{Index: i, ID: "x.ts"} }
	results := []*TaskResult{
		Passed(tk(0), time.Now()),
		Passed(tk(1), time.Now()),
		Failed(tk(2), time.Now(), ReasonTimeout, "timeout after 90000ms"),
	}

	r := NewRunReport("run1", []string{"01-intro/code"}, 10, 90*time.Second, results, 3*time.Second)

	if r.TotalTasks != 3 || r.Passed != 2 || r.Failed != 1 {
		t.Errorf("unexpected counts: total=%d passed=%d failed=%d", r.TotalTasks, r.Passed, r.Failed)
	}
	if math.Abs(r.SuccessRate-66.666) > 0.01 {
		t.Errorf("success rate = %f", r.SuccessRate)
	}
	if r.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", r.ExitCode())
	}
	failures := r.Failures()
	if len(failures) != 1 || failures[0].Index != 2 {
		t.Errorf("unexpected failures: %+v", failures)
	}
}

func TestNewRunReport_Empty(t *testing.T) {
	r := NewRunReport("run1", nil, 10, time.Minute, nil, 0)

	if r.TotalTasks != 0 || r.Passed != 0 || r.Failed != 0 {
		t.Errorf("unexpected counts: %+v", r)
	}
	if r.SuccessRate != 0 {
		t.Errorf("success rate = %f, want 0", r.SuccessRate)
	}
	if r.ExitCode() != 0 {
		t.Errorf("exit code = %d, want 0", r.ExitCode())
	}
}

func TestFailed_Fields(t *testing.T) {
	start := time.Now().Add(-50 * time.Millisecond)
	res := Failed(&Task{Index: 4, ID: "02-rag/solution/app.ts"}, start, ReasonSpawn, "exec: not found")

	if res.Success || res.State != StateFailed {
		t.Errorf("expected failed result, got %+v", res)
	}
	if res.Index != 4 || res.Path != "02-rag/solution/app.ts" {
		t.Errorf("unexpected identity: %d %q", res.Index, res.Path)
	}
	if res.DurationMS < 50 {
		t.Errorf("duration_ms = %d, want >= 50", res.DurationMS)
	}
}

func TestTaskResult_JSON(t *testing.T) {
	res := Passed(&Task{Index: 0, ID: "a.ts"}, time.Now())
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, `"duration_ms"`) {
		t.Errorf("expected duration_ms in %s", s)
	}
	if strings.Contains(s, `"error"`) {
		t.Errorf("error field should be omitted on success: %s", s)
	}
}

func TestTask_HasInput(t *testing.T) {
	if (&Task{}).HasInput() {
		t.Error("empty input reported as present")
	}
	if !(&Task{Input: "exit\n"}).HasInput() {
		t.Error("input not reported")
	}
}
