package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/envconfig"
	"github.com/roach88/bootlatch/internal/host"
	"github.com/roach88/bootlatch/internal/journal"
	"github.com/roach88/bootlatch/internal/testutil"
)

// HostName is the name of every host the harness builds.
const HostName = "harness"

// Run executes a scenario and returns the result.
//
// Each run uses a fresh host and a fresh in-memory journal. The clock and
// the activation id are deterministic, so the same scenario always yields the
// same trace. A returned error means the scenario could not be executed;
// failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	j, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()

	rec := journal.NewRecorder(j,
		journal.WithClock(testutil.NewDeterministicClock()),
		journal.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.ActivationID)),
	)
	h := host.New(HostName,
		host.WithObserver(rec),
		host.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	defer h.Destroy()

	env, err := environment(scenario)
	if err != nil {
		return nil, err
	}
	if err := h.Register(embedded.EnvironmentKey, env); err != nil {
		return nil, fmt.Errorf("register environment: %w", err)
	}
	if err := h.Initializer("embedded", func(h *host.Host) error {
		return embedded.Initialize(h)
	}); err != nil {
		return nil, err
	}

	if err := h.RunInitializers(); err != nil {
		return nil, fmt.Errorf("run initializers: %w", err)
	}

	for i, step := range scenario.Resume {
		resume, ok := h.Resume()
		if !ok {
			return nil, fmt.Errorf("resume[%d]: host has no resume function attached", i)
		}
		if err := resume(step.Overrides); err != nil {
			return nil, fmt.Errorf("resume[%d]: %w", i, err)
		}
	}

	result := NewResult()
	result.ActivationID = rec.ActivationID()

	events, err := j.ReadEvents(ctx, rec.ActivationID())
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	for _, ev := range events {
		te, err := traceEvent(ev)
		if err != nil {
			return nil, err
		}
		result.AddTrace(te)
	}

	result.Final = captureFinal(h)

	for _, msg := range EvaluateExpect(result, scenario.Expect) {
		result.AddError(msg)
	}

	return result, nil
}

// environment returns the snapshot to register: the raw map, or the typed
// Environment loaded from EnvironmentFile.
func environment(scenario *Scenario) (any, error) {
	if scenario.EnvironmentFile == "" {
		return scenario.Environment, nil
	}
	env, err := envconfig.Load(scenario.EnvironmentFile)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return env, nil
}

func traceEvent(ev journal.Event) (TraceEvent, error) {
	te := TraceEvent{
		Seq:       ev.Seq,
		Kind:      ev.Kind,
		Key:       ev.Key,
		Deferrals: ev.Deferrals,
		Digest:    ev.Digest,
	}
	if ev.Payload != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(ev.Payload)))
		dec.UseNumber()
		if err := dec.Decode(&te.Config); err != nil {
			return TraceEvent{}, fmt.Errorf("decode payload at seq %d: %w", ev.Seq, err)
		}
	}
	return te, nil
}

func captureFinal(h *host.Host) FinalState {
	_, resumable := h.Resume()
	final := FinalState{
		State:     embedded.StateOf(h),
		Booted:    h.Booted(),
		Deferrals: h.ReadinessDeferrals(),
		Resumable: resumable,
	}
	if v, ok := h.ResolveRegistration(embedded.ConfigKey); ok {
		final.ConfigRegistered = true
		final.Config, _ = v.(embedded.Config)
	}
	return final
}
