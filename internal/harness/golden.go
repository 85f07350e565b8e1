package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/swapchain/internal/canonical"
)

// TraceSnapshot captures the complete trace for a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot for canonical serialization, which
// only handles maps, slices and primitives. Empty fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":     ev.Seq,
			"op":      ev.Op,
			"outcome": ev.Outcome,
		}
		if ev.Chain != "" {
			m["chain"] = ev.Chain
		}
		if ev.Status != "" {
			m["status"] = ev.Status
		}
		if len(ev.Candidates) > 0 {
			cands := make([]any, len(ev.Candidates))
			for j, c := range ev.Candidates {
				cands[j] = map[string]any{
					"route":    c.Route,
					"fairness": c.Fairness,
					"cash":     c.Cash,
				}
			}
			m["candidates"] = cands
		}
		if ev.Valid != nil {
			m["valid"] = *ev.Valid
		}
		if len(ev.Issues) > 0 {
			m["issues"] = ev.Issues
		}
		if ev.Attempt != "" {
			m["attempt"] = ev.Attempt
		}
		if ev.Transfers > 0 {
			m["transfers"] = ev.Transfers
		}
		if ev.FailedStep != "" {
			m["failed_step"] = ev.FailedStep
		}
		if len(ev.Expired) > 0 {
			m["expired"] = ev.Expired
		}
		trace[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
}

// Canonical returns the canonical JSON of the snapshot.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	return canonical.Marshal(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the trace doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	traceJSON, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
