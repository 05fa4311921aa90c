// Package embedded implements the deferred-start coordinator.
//
// Initialize runs as a host initializer. It reads the "embedded" section of
// the environment registered under "config:environment":
//
//	embedded:
//	  delegateStart: true
//	  config:
//	    yo: my config
//
// Without delegateStart the config (or an empty map) is registered under
// "config:embedded" right away and boot continues untouched. With it, one
// readiness deferral is taken and a resume function is attached to the host;
// "config:embedded" stays unregistered until an external caller invokes the
// resume function, which shallow-merges its argument over the config,
// registers the result and releases the deferral.
//
// The coordinator keeps no state outside the closure it attaches, does no I/O
// and takes no locks. Deferral bookkeeping and registry storage belong to the
// host.
package embedded
