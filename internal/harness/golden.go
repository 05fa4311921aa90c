package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bootlatch/internal/canon"
)

// TraceSnapshot is the golden-file view of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	ActivationID string       `json:"activation_id"`
	Trace        []TraceEvent `json:"trace"`
	Final        FinalState   `json:"final"`
}

// NewSnapshot builds the snapshot of result under name.
func NewSnapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		ActivationID: result.ActivationID,
		Trace:        result.Trace,
		Final:        result.Final,
	}
}

// Marshal returns the canonical JSON of the snapshot.
func (s TraceSnapshot) Marshal() ([]byte, error) {
	return canon.Marshal(s.toCanonicalMap())
}

// toCanonicalMap converts the snapshot to the plain maps canon encodes.
func (s TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq":       ev.Seq,
			"kind":      ev.Kind,
			"deferrals": ev.Deferrals,
		}
		if ev.Key != "" {
			m["key"] = ev.Key
		}
		if ev.Config != nil {
			m["config"] = ev.Config
		}
		if ev.Digest != "" {
			m["digest"] = ev.Digest
		}
		trace[i] = m
	}

	final := map[string]any{
		"state":             string(s.Final.State),
		"booted":            s.Final.Booted,
		"deferrals":         s.Final.Deferrals,
		"resumable":         s.Final.Resumable,
		"config_registered": s.Final.ConfigRegistered,
	}
	if s.Final.ConfigRegistered {
		cfg := s.Final.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		final["config"] = cfg
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"activation_id": s.ActivationID,
		"trace":         trace,
		"final":         final,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
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

// AssertGolden compares an existing result against the golden file for name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(name, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
