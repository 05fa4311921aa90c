package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the host did not boot, or a scenario failed
	ExitCommandError = 2 // bad flags, unreadable files, missing journal
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that carry no
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return ExitFailure
	}
}

// CLIResponse is the envelope of every JSON result.
type CLIResponse struct {
	Status       string    `json:"status"` // "ok" or "error"
	Data         any       `json:"data,omitempty"`
	Error        *CLIError `json:"error,omitempty"`
	ActivationID string    `json:"activation_id,omitempty"`
}

// CLIError describes a failure inside a CLIResponse.
type CLIError struct {
	Code    string `json:"code"` // envconfig error code or E_TEST_FAILED
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Printer writes command results to Out, as text or as a CLIResponse when
// Format is "json". Verbose diagnostics go to Diag so they never mix with a
// JSON document.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer // defaults to Out
	Verbose bool
	Indent  bool // indent JSON documents
}

// JSON reports whether results are written as JSON.
func (p *Printer) JSON() bool { return p.Format == "json" }

// Respond encodes resp as one JSON document.
func (p *Printer) Respond(resp CLIResponse) error {
	enc := json.NewEncoder(p.Out)
	if p.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}

// OK writes a successful result. Text mode prints data with %v.
func (p *Printer) OK(data any) error {
	if p.JSON() {
		return p.Respond(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(p.Out, data)
	return err
}

// Fail writes a failure. Text mode prints details only under --verbose.
func (p *Printer) Fail(code, message string, details map[string]any) error {
	if p.JSON() {
		resp := CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message},
		}
		if len(details) > 0 {
			resp.Error.Details = details
		}
		return p.Respond(resp)
	}

	fmt.Fprintf(p.Out, "✗ [%s] %s\n", code, message)
	if p.Verbose {
		for _, k := range slices.Sorted(maps.Keys(details)) {
			fmt.Fprintf(p.Out, "  %s: %v\n", k, details[k])
		}
	}
	return nil
}

// Debugf writes a diagnostic line under --verbose.
func (p *Printer) Debugf(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Diag
	if w == nil {
		w = p.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}
