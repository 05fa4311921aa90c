// Package harness runs boot scenarios against a real host.
//
// A scenario names an environment snapshot, the resume calls an external
// caller makes, and the state the host must end in:
//
//	name: delegated_resume_merges
//	description: resume merges overrides over the configured map
//	environment:
//	  embedded:
//	    delegateStart: true
//	    config: {yo: my config, hey: sup?}
//	resume:
//	  - overrides: {yay: one more, yo: new config}
//	expect:
//	  state: resumed
//	  booted: true
//	  config: {yo: new config, hey: sup?, yay: one more}
//
// Run installs the embedded initializer on a fresh host, records every host
// event to an in-memory journal stamped by a deterministic clock, performs
// the resume calls and evaluates the expectations. The recorded trace is
// canonical JSON, so RunWithGolden can compare it byte for byte with a
// golden file.
package harness
