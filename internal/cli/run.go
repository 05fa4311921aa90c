package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bootlatch/internal/canon"
	"github.com/roach88/bootlatch/internal/control"
	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/envconfig"
	"github.com/roach88/bootlatch/internal/host"
	"github.com/roach88/bootlatch/internal/journal"
	"github.com/roach88/bootlatch/internal/metrics"
)

// DefaultHostName names the host when the environment has no modulePrefix.
const DefaultHostName = "bootlatch"

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Listen   string
	Resume   string        // overrides file, "-" for stdin
	Timeout  time.Duration // 0 waits until interrupted
	Hold     bool          // keep the control server up after boot

	// IDGenerator allows overriding the activation id generator (for testing).
	// If nil, defaults to journal.UUIDv7Generator.
	IDGenerator journal.IDGenerator

	// OnListen is called with the control server address once it listens.
	OnListen func(addr string)
}

// RunResult is what run reports once the host booted.
type RunResult struct {
	Name         string          `json:"name"`
	State        embedded.State  `json:"state"`
	ActivationID string          `json:"activation_id,omitempty"`
	Config       json.RawMessage `json:"config"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <environment-file>",
		Short: "Boot a host with the embedded initializer",
		Long: `Boot an application host from an environment file.

The environment is registered under config:environment and the embedded
initializer runs. Without embedded.delegateStart the host boots at once.
With it, boot waits until the start is resumed, either from a file given
with --resume or over HTTP with POST /start on the --listen address.

Once booted the embedded configuration is printed.

Examples:
  bootlatch run ./environment.yaml
  bootlatch run ./environment.yaml --resume overrides.json
  echo '{"yo":"cli"}' | bootlatch run ./environment.cue --resume -
  bootlatch run ./environment.yaml --listen 127.0.0.1:8420 --db ./boot.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the boot in a SQLite journal")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "serve the control API on this address")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "resume a delegated start with overrides from a YAML/JSON file (- for stdin)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "give up waiting for the start after this long (0 waits until interrupted)")
	cmd.Flags().BoolVar(&opts.Hold, "hold", false, "keep serving the control API after boot until interrupted")

	return cmd
}

func runBoot(opts *RunOptions, envPath string, cmd *cobra.Command) error {
	if err := opts.resolve(cmd); err != nil {
		return err
	}
	opts.lookupString("db", &opts.Database)
	opts.lookupString("listen", &opts.Listen)

	if opts.Resume != "" && opts.Listen != "" {
		return NewExitError(ExitCommandError, "--resume and --listen are mutually exclusive")
	}
	if opts.Hold && opts.Listen == "" {
		return NewExitError(ExitCommandError, "--hold requires --listen")
	}

	p := opts.printer(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	env, err := envconfig.Load(envPath)
	if err != nil {
		return reportLoadError(p, err)
	}

	name := env.ModulePrefix
	if name == "" {
		name = DefaultHostName
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}
	hostOpts := []host.Option{host.WithLogger(logger), host.WithObserver(collector)}

	var rec *journal.Recorder
	if opts.Database != "" {
		logger.Debug("opening journal", "path", opts.Database)
		j, err := journal.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()

		idGen := opts.IDGenerator
		if idGen == nil {
			idGen = journal.UUIDv7Generator{}
		}
		rec = journal.NewRecorder(j,
			journal.WithIDGenerator(idGen),
			journal.WithPayloadKeys(embedded.EnvironmentKey),
		)
		hostOpts = append(hostOpts, host.WithObserver(rec))
	}

	h := host.New(name, hostOpts...)
	defer h.Destroy()

	if err := h.Register(embedded.EnvironmentKey, env); err != nil {
		return WrapExitError(ExitCommandError, "failed to register environment", err)
	}
	if err := h.Initializer("embedded", func(h *host.Host) error {
		return embedded.Initialize(h)
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to install initializer", err)
	}

	// Setup signal handling for graceful shutdown.
	// Use command's context if available (for testing), otherwise create one.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var srv *control.Server
	if opts.Listen != "" {
		l, err := net.Listen("tcp", opts.Listen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
		srv = control.New(h, control.WithLogger(logger), control.WithGatherer(reg))
		serveErr := make(chan error, 1)
		go func() { serveErr <- srv.Serve(l) }()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("error stopping control server", "error", err)
			}
			if err := <-serveErr; err != nil {
				logger.Error("control server failed", "error", err)
			}
		}()
		if opts.OnListen != nil {
			opts.OnListen(l.Addr().String())
		}
	}

	if err := h.RunInitializers(); err != nil {
		return WrapExitError(ExitFailure, "boot failed", err)
	}

	if opts.Resume != "" {
		if err := resumeFromFile(h, opts.Resume, cmd.InOrStdin()); err != nil {
			return err
		}
	}

	bootCtx := ctx
	if opts.Timeout > 0 {
		var cancelBoot context.CancelFunc
		bootCtx, cancelBoot = context.WithTimeout(ctx, opts.Timeout)
		defer cancelBoot()
	}
	if err := h.Boot(bootCtx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return WrapExitError(ExitFailure, "host did not boot", err)
		}
		return WrapExitError(ExitFailure, "boot failed", err)
	}
	logger.Info("host booted", "host", name, "state", embedded.StateOf(h))

	result, err := runResult(h, rec)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode embedded config", err)
	}
	if err := printRunResult(p, result); err != nil {
		return err
	}

	if opts.Hold {
		logger.Info("holding control server, interrupt to stop", "addr", opts.Listen)
		<-ctx.Done()
	}
	return nil
}

// resumeFromFile reads overrides from path (stdin for "-") and resumes h.
func resumeFromFile(h *host.Host, path string, stdin io.Reader) error {
	resume, ok := h.Resume()
	if !ok {
		return NewExitError(ExitCommandError, "--resume given but the environment does not set embedded.delegateStart")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read overrides", err)
	}

	overrides, err := parseOverrides(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid overrides", err)
	}
	if err := resume(overrides); err != nil {
		return WrapExitError(ExitFailure, "resume failed", err)
	}
	return nil
}

// parseOverrides decodes a YAML or JSON mapping. An empty document or null
// means no overrides.
func parseOverrides(data []byte) (map[string]any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("overrides must be a mapping, got %T", v)
	}
	return m, nil
}

func runResult(h *host.Host, rec *journal.Recorder) (RunResult, error) {
	result := RunResult{
		Name:  h.Name(),
		State: embedded.StateOf(h),
	}
	if rec != nil {
		result.ActivationID = rec.ActivationID()
	}

	cfg, _ := h.ResolveRegistration(embedded.ConfigKey)
	if cfg == nil {
		cfg = embedded.Config{}
	}
	data, err := canon.Marshal(cfg)
	if err != nil {
		return RunResult{}, err
	}
	result.Config = data
	return result, nil
}

func printRunResult(p *Printer, result RunResult) error {
	if p.JSON() {
		return p.Respond(CLIResponse{
			Status:       "ok",
			Data:         result,
			ActivationID: result.ActivationID,
		})
	}

	w := p.Out
	fmt.Fprintf(w, "✓ %s booted (%s)\n", result.Name, result.State)
	if result.ActivationID != "" {
		fmt.Fprintf(w, "  activation: %s\n", result.ActivationID)
	}
	fmt.Fprintf(w, "  config: %s\n", result.Config)
	return nil
}

// reportLoadError prints an environment that failed to load and returns the
// matching ExitError.
func reportLoadError(p *Printer, err error) error {
	var loadErr *envconfig.LoadError
	if !errors.As(err, &loadErr) {
		return WrapExitError(ExitCommandError, "failed to load environment", err)
	}

	var details map[string]any
	if loadErr.Pos.IsValid() {
		details = map[string]any{
			"file":   loadErr.Pos.Filename(),
			"line":   loadErr.Pos.Line(),
			"column": loadErr.Pos.Column(),
		}
	}
	if outErr := p.Fail(loadErr.Code, loadErr.Message, details); outErr != nil {
		return outErr
	}

	code := ExitFailure
	if loadErr.Code == envconfig.ErrCodeRead || loadErr.Code == envconfig.ErrCodeFormat {
		code = ExitCommandError
	}
	return WrapExitError(code, "invalid environment", err)
}
