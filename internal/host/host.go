package host

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/bootlatch/internal/registry"
)

// ResumeFunc is the function an initializer may attach to the host so that an
// external caller can complete a deferred boot.
type ResumeFunc = func(overrides map[string]any) error

// InitializeFunc is run once during the initializer phase of Boot.
type InitializeFunc func(h *Host) error

type initializer struct {
	name string
	fn   InitializeFunc
}

// Host is an application host with a registry, ordered initializers and a
// readiness deferral counter. Boot completes only once every initializer ran
// and the deferral count is back to zero.
//
// Host is safe for concurrent use.
type Host struct {
	name      string
	logger    *slog.Logger
	registry  *registry.Registry
	observers []Observer

	mu           sync.Mutex
	initializers []initializer
	initStarted  bool
	initDone     bool
	initErr      error
	deferrals    int
	booted       bool
	destroyed    bool
	resume       ResumeFunc

	ready chan struct{}
	done  chan struct{}
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithObserver adds an observer of host events.
func WithObserver(o Observer) Option {
	return func(h *Host) {
		if o != nil {
			h.observers = append(h.observers, o)
		}
	}
}

// WithRegistry uses reg instead of a fresh registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(h *Host) {
		if reg != nil {
			h.registry = reg
		}
	}
}

// New creates a host named name.
func New(name string, opts ...Option) *Host {
	h := &Host{
		name:     name,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: registry.New(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the host name.
func (h *Host) Name() string {
	return h.name
}

// Logger returns the host logger.
func (h *Host) Logger() *slog.Logger {
	return h.logger
}

// Registry returns the underlying registry. Writes made directly on it are
// not observed; prefer Register.
func (h *Host) Registry() *registry.Registry {
	return h.registry
}

// Initializer adds a named initializer. Initializers run in the order they
// were added.
func (h *Host) Initializer(name string, fn InitializeFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if name == "" || fn == nil {
		return &Error{Code: ErrCodeInvalidInitializer, Message: "initializer needs a name and a func", Host: h.name, Initializer: name}
	}
	if h.initStarted {
		return &Error{Code: ErrCodeAlreadyInitialized, Message: "initializer phase already started", Host: h.name, Initializer: name}
	}
	for _, in := range h.initializers {
		if in.name == name {
			return &Error{Code: ErrCodeDuplicateInitializer, Message: "initializer already registered", Host: h.name, Initializer: name}
		}
	}
	h.initializers = append(h.initializers, initializer{name: name, fn: fn})
	return nil
}

// Register stores value under key in the host registry.
func (h *Host) Register(key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.destroyed {
		return newDestroyedError(h.name)
	}
	if err := h.registry.Register(key, value); err != nil {
		return err
	}
	h.logger.Debug("registered", "host", h.name, "key", key)
	h.emitLocked(Event{Kind: EventRegister, Key: key, Value: value})
	return nil
}

// Unregister removes key from the host registry.
func (h *Host) Unregister(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registry.Unregister(key)
	h.emitLocked(Event{Kind: EventUnregister, Key: key})
}

// ResolveRegistration returns the value registered under key and whether it
// is present.
func (h *Host) ResolveRegistration(key string) (any, bool) {
	return h.registry.Resolve(key)
}

// DeferReadiness takes one readiness deferral. Boot will not complete until a
// matching AdvanceReadiness call.
func (h *Host) DeferReadiness() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deferrals++
	h.logger.Debug("readiness deferred", "host", h.name, "deferrals", h.deferrals)
	h.emitLocked(Event{Kind: EventDefer})
}

// AdvanceReadiness releases one readiness deferral. Reaching zero after the
// initializer phase completes the boot.
func (h *Host) AdvanceReadiness() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deferrals--
	if h.deferrals < 0 {
		h.logger.Warn("readiness advanced more times than deferred", "host", h.name, "deferrals", h.deferrals)
	} else {
		h.logger.Debug("readiness advanced", "host", h.name, "deferrals", h.deferrals)
	}
	h.emitLocked(Event{Kind: EventAdvance})
	h.maybeBootLocked()
}

// ReadinessDeferrals returns the number of outstanding deferrals.
func (h *Host) ReadinessDeferrals() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deferrals
}

// AttachResume attaches fn as the host's resume function, replacing any
// previous one.
func (h *Host) AttachResume(fn func(overrides map[string]any) error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.resume = fn
	h.logger.Debug("resume attached", "host", h.name)
	h.emitLocked(Event{Kind: EventAttach})
}

// Resume returns the attached resume function, if any.
func (h *Host) Resume() (ResumeFunc, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resume, h.resume != nil
}

// RunInitializers runs every initializer once, in order. Later calls return
// the outcome of the first run.
func (h *Host) RunInitializers() error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return newDestroyedError(h.name)
	}
	if h.initStarted {
		err := h.initErr
		h.mu.Unlock()
		return err
	}
	h.initStarted = true
	inits := slices.Clone(h.initializers)
	h.mu.Unlock()

	// Initializers call back into the host, so they run without the lock.
	for _, in := range inits {
		h.logger.Debug("running initializer", "host", h.name, "initializer", in.name)
		if err := in.fn(h); err != nil {
			herr := &Error{
				Code:        ErrCodeInitializerFailed,
				Message:     "initializer failed",
				Host:        h.name,
				Initializer: in.name,
				Err:         err,
			}
			h.mu.Lock()
			h.initErr = herr
			h.mu.Unlock()
			return herr
		}
		h.mu.Lock()
		h.emitLocked(Event{Kind: EventInitializer, Key: in.name})
		h.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.initDone = true
	h.maybeBootLocked()
	return nil
}

// Boot runs the initializer phase and waits until the host is ready.
//
// While a deferral is outstanding Boot blocks; it returns ctx.Err() if ctx is
// done first, leaving the host un-booted. Boot may be called again later.
func (h *Host) Boot(ctx context.Context) error {
	if err := h.RunInitializers(); err != nil {
		return err
	}
	if h.Booted() {
		return nil
	}
	h.logger.Info("waiting for readiness", "host", h.name, "deferrals", h.ReadinessDeferrals())

	select {
	case <-h.ready:
		return nil
	case <-h.done:
		return newDestroyedError(h.name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once the host has booted.
func (h *Host) Ready() <-chan struct{} {
	return h.ready
}

// Booted reports whether the host completed its boot.
func (h *Host) Booted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.booted
}

// Destroy tears the host down. Pending Boot calls return a destroyed error
// and further registrations fail.
func (h *Host) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.destroyed {
		return
	}
	h.destroyed = true
	close(h.done)
	h.logger.Debug("host destroyed", "host", h.name)
	h.emitLocked(Event{Kind: EventDestroyed})
}

func (h *Host) maybeBootLocked() {
	if h.booted || h.destroyed || !h.initDone || h.deferrals != 0 {
		return
	}
	h.booted = true
	close(h.ready)
	h.logger.Info("host booted", "host", h.name)
	h.emitLocked(Event{Kind: EventBooted})
}

func (h *Host) emitLocked(ev Event) {
	ev.Host = h.name
	ev.Deferrals = h.deferrals
	for _, o := range h.observers {
		if err := o.Observe(ev); err != nil {
			h.logger.Warn("observer failed", "host", h.name, "event", ev.Kind, "error", err)
		}
	}
}
