// Package host implements the application host that bootlatch initializers
// run in.
//
// A host owns three things an initializer can use:
//   - a registry of "type:name" keys (see package registry)
//   - a readiness deferral counter (DeferReadiness / AdvanceReadiness)
//   - a slot where an initializer may attach a resume function
//
// Boot runs the initializers once, in the order they were added, and then
// waits until every deferral was advanced. The host emits an Event for each
// state change to its observers; the boot journal and the metrics collector
// are both observers.
//
// # Lifecycle
//
//	h := host.New("app", host.WithLogger(logger))
//	_ = h.Initializer("embedded", func(h *host.Host) error { return embedded.Initialize(h) })
//	if err := h.Boot(ctx); err != nil {
//	    // ctx cancelled while a deferral was outstanding, or an initializer failed
//	}
package host
