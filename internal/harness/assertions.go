package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bootlatch/internal/canon"
)

// AssertionError is a failed expectation with enough context to debug it.
type AssertionError struct {
	Field    string       // expectation that failed, e.g. "state"
	Expected string       // human-readable expected outcome
	Actual   string       // human-readable actual outcome
	Trace    []TraceEvent // full trace for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Expectation failed: %s\n", e.Field)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Kind)
			if ev.Key != "" {
				fmt.Fprintf(&buf, " %s", ev.Key)
			}
			fmt.Fprintf(&buf, " (deferrals=%d)\n", ev.Deferrals)
		}
	}

	return buf.String()
}

// EvaluateExpect checks every set field of expect against result and returns
// one message per failed expectation.
func EvaluateExpect(result *Result, expect ExpectClause) []string {
	var errs []string
	fail := func(field, expected, actual string) {
		errs = append(errs, (&AssertionError{
			Field:    field,
			Expected: expected,
			Actual:   actual,
			Trace:    result.Trace,
		}).Error())
	}

	final := result.Final

	if expect.State != "" && string(final.State) != expect.State {
		fail("state", expect.State, string(final.State))
	}
	if expect.Booted != nil && final.Booted != *expect.Booted {
		fail("booted", fmt.Sprint(*expect.Booted), fmt.Sprint(final.Booted))
	}
	if expect.Deferrals != nil && final.Deferrals != *expect.Deferrals {
		fail("deferrals", fmt.Sprint(*expect.Deferrals), fmt.Sprint(final.Deferrals))
	}
	if expect.Resumable != nil && final.Resumable != *expect.Resumable {
		fail("resumable", fmt.Sprint(*expect.Resumable), fmt.Sprint(final.Resumable))
	}
	if expect.ConfigRegistered != nil && final.ConfigRegistered != *expect.ConfigRegistered {
		fail("config_registered", fmt.Sprint(*expect.ConfigRegistered), fmt.Sprint(final.ConfigRegistered))
	}
	if expect.Config != nil {
		if err := assertConfig(expect.Config, final); err != nil {
			fail("config", err.Expected, err.Actual)
		}
	}
	if expect.Trace != nil && !slices.Equal(expect.Trace, result.Kinds()) {
		fail("trace", strings.Join(expect.Trace, ","), strings.Join(result.Kinds(), ","))
	}

	return errs
}

// assertConfig compares configs by their canonical encoding, so key order
// and integer representation do not matter.
func assertConfig(expected map[string]any, final FinalState) *AssertionError {
	want, err := canon.MarshalString(expected)
	if err != nil {
		return &AssertionError{Expected: "encodable config", Actual: err.Error()}
	}
	if !final.ConfigRegistered {
		return &AssertionError{Expected: want, Actual: "config:embedded not registered"}
	}
	got, err := canon.MarshalString(final.Config)
	if err != nil {
		return &AssertionError{Expected: want, Actual: err.Error()}
	}
	if got != want {
		return &AssertionError{Expected: want, Actual: got}
	}
	return nil
}
