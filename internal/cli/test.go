package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bootlatch/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string // glob over scenario file names without extension
	Golden string // defaults to <scenarios-dir>/golden
}

// Golden file outcomes reported per scenario.
const (
	GoldenMatch    = "match"
	GoldenMismatch = "mismatch"
	GoldenMissing  = "missing"
	GoldenUpdated  = "updated"
)

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"`
	Events int      `json:"events"`
	Errors []string `json:"errors,omitempty"`

	loadFailed bool
}

// TestResult is the outcome of a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

func (r *TestResult) err() error {
	if r.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", r.Failed))
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run boot scenarios",
		Long: `Run boot scenarios with the harness.

Each scenario boots a fresh host from its environment, applies its resume
calls and checks the expected end state. When a golden file exists for a
scenario, the canonical trace must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  bootlatch test ./scenarios
  bootlatch test ./scenarios --filter "delegated_*"
  bootlatch test ./scenarios --update
  bootlatch test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if err := opts.resolve(cmd); err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+dir)
	}
	if opts.Golden == "" {
		opts.Golden = filepath.Join(dir, "golden")
	}

	files, err := scenarioFiles(dir, opts.Golden, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	p := opts.printer(cmd)
	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		s := runScenario(file, opts.Golden, opts.Update)
		result.add(s)
		if !p.JSON() {
			printScenario(p.Out, s)
		}
		p.Debugf("%s: %d events, golden %s", s.Name, s.Events, s.Golden)
	}

	if p.JSON() {
		p.Indent = true
		resp := CLIResponse{Status: "ok", Data: result}
		if result.Failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_TEST_FAILED",
				Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
			}
		}
		if err := p.Respond(resp); err != nil {
			return err
		}
		return result.err()
	}

	if result.Total == 0 {
		fmt.Fprintln(p.Out, "No scenarios found.")
		return nil
	}
	fmt.Fprintf(p.Out, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if err := result.err(); err != nil {
		return err
	}
	fmt.Fprintln(p.Out, "✓ All scenarios passed")
	return nil
}

// scenarioFiles walks dir for .yaml and .yml files, skipping goldenDir.
func scenarioFiles(dir, goldenDir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}
	skip := filepath.Clean(goldenDir)

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && filepath.Clean(path) == skip:
			return filepath.SkipDir
		case d.IsDir():
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario loads and runs one scenario file and checks its golden trace.
func runScenario(file, goldenDir string, update bool) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:       filepath.Base(file),
			Errors:     []string{err.Error()},
			loadFailed: true,
		}
	}

	out := ScenarioResult{Name: scenario.Name}
	result, err := harness.Run(scenario)
	if err != nil {
		out.Errors = []string{"execution failed: " + err.Error()}
		return out
	}
	out.Pass = result.Pass
	out.Events = len(result.Trace)
	out.Errors = result.Errors

	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")
	out.Golden, err = checkGolden(harness.NewSnapshot(scenario.Name, result), goldenPath, update)
	if err != nil {
		out.Pass = false
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

// checkGolden compares the snapshot with the golden file at path, or
// rewrites the file when update is set.
func checkGolden(snap harness.TraceSnapshot, path string, update bool) (string, error) {
	current, err := snap.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal trace: %w", err)
	}

	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, current, 0644); err != nil {
			return "", fmt.Errorf("failed to write golden file: %w", err)
		}
		return GoldenUpdated, nil
	}

	want, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return GoldenMissing, nil
	case err != nil:
		return "", fmt.Errorf("failed to read golden file: %w", err)
	case !bytes.Equal(want, current):
		return GoldenMismatch, fmt.Errorf("trace differs from %s (run with --update to accept)", path)
	}
	return GoldenMatch, nil
}

func printScenario(w io.Writer, s ScenarioResult) {
	if s.Pass {
		suffix := ""
		if s.Golden == GoldenUpdated {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "✓ %s%s\n", s.Name, suffix)
		return
	}

	fmt.Fprintf(w, "✗ %s\n", s.Name)
	for _, e := range s.Errors {
		if s.loadFailed {
			e = "Load error: " + e
		}
		fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(strings.TrimRight(e, "\n"), "\n", "\n  "))
	}
}
