package host

// EventKind identifies a host lifecycle event.
type EventKind string

const (
	EventRegister    EventKind = "register"
	EventUnregister  EventKind = "unregister"
	EventDefer       EventKind = "defer"
	EventAdvance     EventKind = "advance"
	EventAttach      EventKind = "attach"
	EventInitializer EventKind = "initializer"
	EventBooted      EventKind = "booted"
	EventDestroyed   EventKind = "destroyed"
)

// Event is delivered to observers after the host state changed.
type Event struct {
	// Host is the name of the emitting host.
	Host string

	// Kind is the event category.
	Kind EventKind

	// Key is the registry key (register/unregister) or the initializer name.
	Key string

	// Value is the registered value for EventRegister.
	Value any

	// Deferrals is the readiness deferral count after the event.
	Deferrals int
}

// Observer receives host events.
//
// Observe is called synchronously while the host holds its state lock, so
// events arrive in the order they happened. Implementations must not call
// back into the host. A returned error is logged and otherwise ignored.
type Observer interface {
	Observe(Event) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event) error

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) error {
	return f(ev)
}
