// Package harness runs YAML scenarios against the fixture apps.
//
// Each scenario mounts one app in a fresh in-memory store and drives it
// through the local host, so async requests, channel acknowledgements and
// requeued events are resolved exactly as a platform would resolve them.
//
// # Scenario Format
//
//	name: counter_steps
//	description: "Counter increments by its step prop"
//	app: counter
//	props: { step: 2 }
//	kv:
//	  greeting/world: "hello"
//	flow:
//	  - press: "+2"
//	  - press: "Select"
//	    data: "moon"
//	  - publish: { channel: lobby, data: "hi" }
//	  - advance: 500
//	  - render: true
//	    blocking: true
//	  - event: { hook: "Counter#0/state#0", userAction: { actionId: "x" } }
//	    expect:
//	      texts: ["Count: 2"]
//	      error: HOOK_COUNT_MISMATCH
//	assertions:
//	  - type: state_equals
//	    hook: Counter#0/state#0
//	    value: 2
//	  - type: state_absent
//	    hook: Counter#0.vstack#0.Child#0/state#0
//	  - type: text_contains
//	    text: "Count: 2"
//	  - type: effect_count
//	    effect: rerender
//	    count: 1
//
// An advance step moves the scenario clock forward by the given number of
// milliseconds and runs every scheduled rerender that falls due.
//
// The initial render always runs before the flow. Every invocation made on
// behalf of the scenario becomes one TraceEvent; RunWithGolden compares the
// trace against testdata/golden/{name}.golden.
package harness
