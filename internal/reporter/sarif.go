package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ppiankov/examplerun/internal/task"
)

const (
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"
	sarifVersion = "2.1.0"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

var ruleDescriptions = map[task.Reason]string{
	task.ReasonSpawn:     "script could not be started",
	task.ReasonExit:      "script exited with a non-zero status",
	task.ReasonSignature: "script exited cleanly but printed an error on stderr",
	task.ReasonTimeout:   "script exceeded the per-script timeout",
	task.ReasonIdle:      "script stopped producing output",
	task.ReasonCanceled:  "run was interrupted before the script finished",
	task.ReasonPanic:     "harness failed while running the script",
}

// WriteSARIFReport writes a SARIF v2.1.0 report with one result per failed
// script. The failure reason is the rule ID and the script path the location.
func WriteSARIFReport(report *task.RunReport, path string) error {
	results := []sarifResult{}
	used := map[task.Reason]bool{}

	for _, r := range report.Failures() {
		reason := r.Reason
		if reason == "" {
			reason = task.ReasonExit
		}
		used[reason] = true

		msg := r.Error
		if msg == "" {
			msg = r.State.String()
		}
		if r.ConnectivityError != "" {
			msg = r.ConnectivityError + ": " + msg
		}

		results = append(results, sarifResult{
			RuleID:  string(reason),
			Level:   "error",
			Message: sarifMessage{Text: msg},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: r.Path},
				},
			}},
		})
	}

	// rules sorted for deterministic output
	ids := make([]string, 0, len(used))
	for reason := range used {
		ids = append(ids, string(reason))
	}
	sort.Strings(ids)
	rules := make([]sarifRule, 0, len(ids))
	for _, id := range ids {
		rules = append(rules, sarifRule{
			ID:               id,
			ShortDescription: sarifMessage{Text: ruleDescriptions[task.Reason(id)]},
		})
	}

	sarif := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{Name: "examplerun", Rules: rules},
			},
			Results: results,
		}},
	}

	data, err := json.MarshalIndent(sarif, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sarif: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sarif: %w", err)
	}

	return nil
}
