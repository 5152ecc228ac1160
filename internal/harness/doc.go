// Package harness runs AMFlow conformance scenarios.
//
// A scenario names a set of sessions on one hub, runs AMFlow operations on
// them through the promise adapter, and checks the outcome of each step
// and the resulting trace and stored state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: tick_broadcast
//	description: "Ticks reach subscribers, transient events are not stored"
//	sessions: [writer, viewer]
//	tokens:
//	  writer-token: { write_tick: true, read_tick: true }
//	  viewer-token: { subscribe_tick: true }
//	setup:
//	  - session: writer
//	    invoke: open
//	    args: { play_id: "1" }
//	  - session: writer
//	    invoke: authenticate
//	    args: { token: writer-token }
//	flow:
//	  - session: writer
//	    invoke: sendTick
//	    args: { tick: { frame: 0 } }
//	    expect:
//	      case: Success
//	assertions:
//	  - type: delivered
//	    session: viewer
//	    kind: tick
//	    count: 1
//	  - type: final_state
//	    table: ticks
//	    where: { play_id: "1", frame: 0 }
//	    expect: { event_count: 0 }
//
// Args are spelled as on the wire. Besides AMFlow operations, steps may
// invoke onTick, offTick, onEvent and offEvent to register or remove the
// session's recording handlers.
//
// # Assertion Types
//
//   - trace_contains: an invocation of action with matching args exists
//   - trace_order: actions were first invoked in the given order
//   - trace_count: action was invoked exactly count times
//   - delivered: session's handlers received count ticks or events
//   - final_state: one stored row matches where and holds expect
//
// # Deterministic Traces
//
// Every run uses a fresh in-memory SQLite database, sequential session IDs
// and a step counter for trace numbering, so a scenario always produces the
// same trace. RunWithGolden compares it against testdata/golden.
package harness
