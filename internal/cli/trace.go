package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bootlatch/internal/host"
	"github.com/roach88/bootlatch/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Activation string // defaults to the latest activation
	Key        string // optional - filter registrations to one key
	List       bool
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Key       string          `json:"key,omitempty"`
	Deferrals int             `json:"deferrals"`
	Config    json.RawMessage `json:"config,omitempty"`
	Digest    string          `json:"digest,omitempty"`
}

// ActivationSummary describes one journaled host lifetime.
type ActivationSummary struct {
	ID        string `json:"id"`
	Host      string `json:"host"`
	Booted    bool   `json:"booted"`
	BootedSeq int64  `json:"booted_seq,omitempty"`
	Destroyed bool   `json:"destroyed"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Activation ActivationSummary `json:"activation"`
	Timeline   []TraceEvent      `json:"timeline"`
	Stats      TraceStats        `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents   int `json:"total_events"`
	Registrations int `json:"registrations"`
	Defers        int `json:"defers"`
	Advances      int `json:"advances"`
	Resumes       int `json:"resumes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled boot of a host",
		Long: `Show the boot timeline recorded by "bootlatch run --db".

The timeline lists every host event in order: registrations, readiness
deferrals and advances, the attached resume function, initializers and
the boot itself. Registrations of config:embedded carry the canonical
configuration and its digest.

Examples:
  bootlatch trace --db ./boot.db
  bootlatch trace --db ./boot.db --list
  bootlatch trace --db ./boot.db --activation 0193... --key config:embedded
  bootlatch trace --db ./boot.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the SQLite journal (required)")
	cmd.Flags().StringVar(&opts.Activation, "activation", "", "activation to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Key, "key", "", "only show registrations of this key")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list activations instead of tracing one")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	if err := opts.resolve(cmd); err != nil {
		return err
	}
	opts.lookupString("db", &opts.Database)
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required (or set BOOTLATCH_DB)")
	}
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	if opts.List {
		return runTraceList(ctx, j, opts, cmd)
	}

	var activation journal.Activation
	if opts.Activation != "" {
		activation, err = j.ReadActivation(ctx, opts.Activation)
	} else {
		activation, err = j.LatestActivation(ctx)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if opts.Activation != "" {
			return NewExitError(ExitFailure, fmt.Sprintf("activation not found: %s", opts.Activation))
		}
		return NewExitError(ExitFailure, "journal has no activations")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read activation", err)
	}

	events, err := j.ReadEvents(ctx, activation.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		Activation: summarize(activation),
		Timeline:   buildTimeline(events, opts.Key),
		Stats:      buildStats(events),
	}

	p := opts.printer(cmd)
	if p.JSON() {
		p.Indent = true
		return p.OK(result)
	}
	return printTrace(p.Out, result)
}

func runTraceList(ctx context.Context, j *journal.Journal, opts *TraceOptions, cmd *cobra.Command) error {
	activations, err := j.ListActivations(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list activations", err)
	}

	summaries := make([]ActivationSummary, len(activations))
	for i, a := range activations {
		summaries[i] = summarize(a)
	}

	p := opts.printer(cmd)
	if p.JSON() {
		p.Indent = true
		return p.OK(summaries)
	}

	w := p.Out
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No activations recorded.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %-20s %s\n", s.ID, s.Host, activationStatus(s))
	}
	return nil
}

func summarize(a journal.Activation) ActivationSummary {
	return ActivationSummary{
		ID:        a.ID,
		Host:      a.Host,
		Booted:    a.Booted(),
		BootedSeq: a.BootedSeq.Int64,
		Destroyed: a.DestroyedSeq.Valid,
	}
}

// buildTimeline converts journal events to timeline events. When keyFilter is
// set, register events for other keys are dropped; all other kinds are kept
// so the deferral count still reads in context.
func buildTimeline(events []journal.Event, keyFilter string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		if keyFilter != "" && ev.Kind == string(host.EventRegister) && ev.Key != keyFilter {
			continue
		}
		te := TraceEvent{
			Seq:       ev.Seq,
			Kind:      ev.Kind,
			Key:       ev.Key,
			Deferrals: ev.Deferrals,
			Digest:    ev.Digest,
		}
		if ev.Payload != "" {
			te.Config = json.RawMessage(ev.Payload)
		}
		timeline = append(timeline, te)
	}
	return timeline
}

func buildStats(events []journal.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	attached := false
	for _, ev := range events {
		switch host.EventKind(ev.Kind) {
		case host.EventRegister:
			stats.Registrations++
			if attached && ev.Payload != "" {
				stats.Resumes++
			}
		case host.EventDefer:
			stats.Defers++
		case host.EventAdvance:
			stats.Advances++
		case host.EventAttach:
			attached = true
		}
	}
	return stats
}

func activationStatus(s ActivationSummary) string {
	switch {
	case s.Booted && s.Destroyed:
		return "booted, destroyed"
	case s.Booted:
		return "booted"
	case s.Destroyed:
		return "destroyed before boot"
	default:
		return "waiting"
	}
}

func printTrace(w io.Writer, result TraceResult) error {
	a := result.Activation

	fmt.Fprintf(w, "Activation: %s\n", a.ID)
	fmt.Fprintf(w, "Host: %s (%s)\n", a.Host, activationStatus(a))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Timeline:")
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %-11s", ev.Seq, ev.Kind)
		if ev.Key != "" {
			fmt.Fprintf(w, " %s", ev.Key)
		}
		fmt.Fprintf(w, " (deferrals=%d)\n", ev.Deferrals)
		if ev.Config != nil {
			fmt.Fprintf(w, "      config: %s\n", ev.Config)
			fmt.Fprintf(w, "      digest: %s\n", ev.Digest)
		}
	}
	fmt.Fprintln(w)

	s := result.Stats
	fmt.Fprintf(w, "Stats: %d events, %d registrations, %d defers, %d advances, %d resumes\n",
		s.TotalEvents, s.Registrations, s.Defers, s.Advances, s.Resumes)
	return nil
}
