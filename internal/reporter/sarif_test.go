package reporter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/examplerun/internal/task"
)

func TestWriteSARIFReport_FailedScripts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.sarif")
	if err := WriteSARIFReport(sampleReport(), path); err != nil {
		t.Fatal(err)
	}

	sarif := readSARIF(t, path)
	if sarif.Version != sarifVersion {
		t.Errorf("version = %q", sarif.Version)
	}
	if len(sarif.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(sarif.Runs))
	}
	results := sarif.Runs[0].Results
	if len(results) != 2 {
		t.Fatalf("expected 2 results (failed only), got %d", len(results))
	}
	if results[0].RuleID != "exit" || results[1].RuleID != "timeout" {
		t.Errorf("rule ids = %q, %q", results[0].RuleID, results[1].RuleID)
	}
	if results[0].Level != "error" {
		t.Errorf("expected level 'error', got %q", results[0].Level)
	}
	if uri := results[1].Locations[0].PhysicalLocation.ArtifactLocation.URI; uri != "02-chat/code/slow.ts" {
		t.Errorf("uri = %q", uri)
	}

	rules := sarif.Runs[0].Tool.Driver.Rules
	if len(rules) != 2 || rules[0].ID != "exit" || rules[1].ID != "timeout" {
		t.Errorf("rules = %+v", rules)
	}
}

func TestWriteSARIFReport_AllPassed(t *testing.T) {
	report := task.NewRunReport("run", nil, 1, time.Second,
		[]*task.TaskResult{{Path: "a.ts", State: task.StatePassed, Success: true}}, time.Second)

	path := filepath.Join(t.TempDir(), "report.sarif")
	if err := WriteSARIFReport(report, path); err != nil {
		t.Fatal(err)
	}

	sarif := readSARIF(t, path)
	if n := len(sarif.Runs[0].Results); n != 0 {
		t.Errorf("expected 0 results, got %d", n)
	}
}

func TestWriteSARIFReport_ConnectivityInMessage(t *testing.T) {
	report := task.NewRunReport("run", nil, 1, time.Second, []*task.TaskResult{{
		Path: "a.ts", State: task.StateFailed, Reason: task.ReasonExit,
		Error: "TypeError: fetch failed", ConnectivityError: "request failed",
	}}, time.Second)

	path := filepath.Join(t.TempDir(), "report.sarif")
	if err := WriteSARIFReport(report, path); err != nil {
		t.Fatal(err)
	}
	msg := readSARIF(t, path).Runs[0].Results[0].Message.Text
	if msg != "request failed: TypeError: fetch failed" {
		t.Errorf("message = %q", msg)
	}
}

func readSARIF(t *testing.T, path string) sarifReport {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var s sarifReport
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	return s
}
