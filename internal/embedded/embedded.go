package embedded

import "log/slog"

// Registry keys read and written by Initialize.
const (
	EnvironmentKey = "config:environment"
	ConfigKey      = "config:embedded"
)

// Config is the embedded configuration made available under ConfigKey.
type Config = map[string]any

// Options is the "embedded" section of the environment snapshot.
type Options struct {
	// DelegateStart hands boot completion to an external caller.
	DelegateStart bool `json:"delegateStart,omitempty" yaml:"delegateStart,omitempty"`

	// Config is the initial embedded configuration.
	Config Config `json:"config,omitempty" yaml:"config,omitempty"`
}

// Snapshot is implemented by typed environment snapshots registered under
// EnvironmentKey.
type Snapshot interface {
	EmbeddedOptions() Options
}

// App is the part of the host Initialize needs.
type App interface {
	ResolveRegistration(key string) (any, bool)
	Register(key string, value any) error
	DeferReadiness()
	AdvanceReadiness()
	AttachResume(fn func(overrides map[string]any) error)
}

// Initialize registers the embedded configuration, or defers the host's
// readiness and attaches a resume function when the environment asks for a
// delegated start.
//
// The resume function merges its overrides into the configured map, registers
// the result under ConfigKey and advances readiness once. It is not
// idempotent: each call registers and advances again.
func Initialize(app App) error {
	opts := ReadOptions(app)

	if !opts.DelegateStart {
		cfg := opts.Config
		if cfg == nil {
			cfg = Config{}
		}
		return app.Register(ConfigKey, cfg)
	}

	app.DeferReadiness()
	loggerOf(app).Debug("embedded start delegated, waiting for resume", "config_keys", len(opts.Config))

	app.AttachResume(func(overrides map[string]any) error {
		if err := app.Register(ConfigKey, Merge(opts.Config, overrides)); err != nil {
			return err
		}
		app.AdvanceReadiness()
		return nil
	})
	return nil
}

// loggerOf returns the app's logger, tagged with its name when it has one,
// or the default logger.
func loggerOf(app App) *slog.Logger {
	logger := slog.Default()
	if l, ok := app.(interface{ Logger() *slog.Logger }); ok && l.Logger() != nil {
		logger = l.Logger()
	}
	if n, ok := app.(interface{ Name() string }); ok {
		logger = logger.With("host", n.Name())
	}
	return logger
}

// ReadOptions returns the embedded options of the snapshot registered under
// EnvironmentKey. A missing or unrecognised snapshot yields zero Options.
func ReadOptions(app interface {
	ResolveRegistration(key string) (any, bool)
}) Options {
	v, ok := app.ResolveRegistration(EnvironmentKey)
	if !ok {
		return Options{}
	}
	switch snap := v.(type) {
	case Snapshot:
		return snap.EmbeddedOptions()
	case map[string]any:
		return OptionsFromMap(snap)
	default:
		return Options{}
	}
}
