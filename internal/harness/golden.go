package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/biogate/internal/ir"
)

// TraceSnapshot captures the observable behavior of a scenario: the
// session state after every step and the resulting audit log. Hashes,
// record IDs and timestamps are left out.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Steps        []StepEvent  `json:"steps"`
	Audit        []AuditEvent `json:"audit"`
}

// toCanonicalMap converts a TraceSnapshot for ir.MarshalCanonical, which
// only handles primitives, []any and map[string]any. Empty optional step
// fields are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, ev := range s.Steps {
		m := map[string]any{
			"do":     ev.Do,
			"frames": ev.Frames,
		}
		for key, val := range map[string]string{
			"handle": ev.Handle,
			"state":  ev.State,
			"reason": ev.Reason,
			"error":  ev.Error,
		} {
			if val != "" {
				m[key] = val
			}
		}
		if ev.Swept != 0 {
			m["swept"] = ev.Swept
		}
		steps[i] = m
	}

	records := make([]any, len(s.Audit))
	for i, a := range s.Audit {
		records[i] = map[string]any{
			"seq":         a.Seq,
			"identity":    a.Identity,
			"fingerprint": a.Fingerprint,
			"face":        a.Face,
			"outcome":     a.Outcome,
			"reason":      a.Reason,
			"frames":      a.Frames,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
		"audit":         records,
	}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass; a trace mismatch
// fails t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
		Audit:        result.Audit,
	}
	traceJSON, err := ir.MarshalCanonical(snapshot.toCanonicalMap())
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
