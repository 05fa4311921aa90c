package harness

import "github.com/roach88/bootlatch/internal/embedded"

// TraceEvent is one journaled host event.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Kind      string `json:"kind"`
	Key       string `json:"key,omitempty"`
	Deferrals int    `json:"deferrals"`

	// Config and Digest are set for registrations of the embedded config.
	Config any    `json:"config,omitempty"`
	Digest string `json:"digest,omitempty"`
}

// FinalState is what the host looked like when the scenario finished.
type FinalState struct {
	State            embedded.State  `json:"state"`
	Booted           bool            `json:"booted"`
	Deferrals        int             `json:"deferrals"`
	Resumable        bool            `json:"resumable"`
	ConfigRegistered bool            `json:"config_registered"`
	Config           embedded.Config `json:"config,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	ActivationID string       `json:"activation_id"`
	Trace        []TraceEvent `json:"trace"`
	Final        FinalState   `json:"final"`

	// Errors lists failed expectations.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// Kinds returns the event kinds of the trace in order.
func (r *Result) Kinds() []string {
	kinds := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		kinds[i] = ev.Kind
	}
	return kinds
}
