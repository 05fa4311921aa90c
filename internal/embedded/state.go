package embedded

// State is the position of one activation in the coordinator's lifecycle.
//
//	init -> immediate
//	init -> deferred -> resumed
type State string

const (
	StateInit      State = "init"
	StateImmediate State = "immediate"
	StateDeferred  State = "deferred"
	StateResumed   State = "resumed"
)

// Terminal reports whether no further transition is expected.
func (s State) Terminal() bool {
	return s == StateImmediate || s == StateResumed
}

// Inspector exposes the host facts StateOf derives the state from.
type Inspector interface {
	ResolveRegistration(key string) (any, bool)
	Resume() (func(overrides map[string]any) error, bool)
}

// StateOf derives the lifecycle state of the activation on app from what is
// observable on the host: whether a resume function is attached and whether
// ConfigKey is registered.
func StateOf(app Inspector) State {
	_, registered := app.ResolveRegistration(ConfigKey)
	_, resumable := app.Resume()

	switch {
	case registered && resumable:
		return StateResumed
	case registered:
		return StateImmediate
	case resumable:
		return StateDeferred
	default:
		return StateInit
	}
}
