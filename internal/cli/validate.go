package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bootlatch/internal/envconfig"
)

// ValidationResult holds the outcome of validating one environment file.
type ValidationResult struct {
	Valid         bool   `json:"valid"`
	File          string `json:"file"`
	Environment   string `json:"environment,omitempty"`
	DelegateStart bool   `json:"delegate_start"`
	ConfigKeys    int    `json:"config_keys"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <environment-file>",
		Short: "Validate an environment file without booting",
		Long: `Validate an environment file against the environment schema.

YAML, JSON and CUE files are accepted. The embedded section is closed, so a
misspelled key such as "delegatestart" or a non-boolean delegateStart is
reported with its position.

Examples:
  bootlatch validate ./environment.yaml
  bootlatch validate ./environment.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	if err := opts.resolve(cmd); err != nil {
		return err
	}
	p := opts.printer(cmd)
	p.Debugf("validating %s", path)

	env, err := envconfig.Load(path)
	if err != nil {
		return reportLoadError(p, err)
	}

	result := ValidationResult{
		Valid:         true,
		File:          path,
		Environment:   env.Name,
		DelegateStart: env.Embedded.DelegateStart,
		ConfigKeys:    len(env.Embedded.Config),
	}

	if p.JSON() {
		return p.OK(result)
	}

	start := "immediate"
	if result.DelegateStart {
		start = "delegated"
	}
	fmt.Fprintf(p.Out, "✓ %s is valid\n  start is %s, %d config key(s)\n", path, start, result.ConfigKeys)
	return nil
}
