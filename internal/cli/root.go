package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override flags,
// e.g. BOOTLATCH_FORMAT or BOOTLATCH_DB.
const EnvPrefix = "BOOTLATCH"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// V resolves flag values against BOOTLATCH_* environment variables.
	V *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootOptions creates options with a fresh viper instance bound to the
// process environment.
func NewRootOptions() *RootOptions {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return &RootOptions{Format: "text", V: v}
}

// NewRootCommand creates the root command for the bootlatch CLI.
func NewRootCommand() *cobra.Command {
	opts := NewRootOptions()

	cmd := &cobra.Command{
		Use:   "bootlatch",
		Short: "bootlatch - deferred application start",
		Long: `Boot an application host whose start can be delegated to an external caller.

With embedded.delegateStart set in the environment, boot holds one readiness
deferral until the caller resumes it with optional configuration overrides.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve binds the flags of cmd, applies environment overrides to the global
// options and validates them. Commands call it again from RunE so they behave
// the same when executed without the root command.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	if o.V == nil {
		o.V = NewRootOptions().V
	}
	if err := o.bindFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := o.bindFlags(cmd.InheritedFlags()); err != nil {
		return err
	}

	o.lookupString("format", &o.Format)
	o.lookupBool("verbose", &o.Verbose)

	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	return nil
}

func (o *RootOptions) bindFlags(flags *pflag.FlagSet) error {
	if err := o.V.BindPFlags(flags); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

// lookupString overwrites dst when key was set by a flag or the environment.
func (o *RootOptions) lookupString(key string, dst *string) {
	if o.V.IsSet(key) {
		*dst = o.V.GetString(key)
	}
}

func (o *RootOptions) lookupBool(key string, dst *bool) {
	if o.V.IsSet(key) {
		*dst = o.V.GetBool(key)
	}
}

// logger returns the slog logger every command uses: text on w, debug level
// under --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// printer builds the result printer for cmd.
func (o *RootOptions) printer(cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  o.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: o.Verbose,
	}
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
