// Package emit provides observability events for workflow execution.
//
// The engine emits one Event per node lifecycle transition plus run-level
// events. Emitters route events to logs, traces, message queues, or memory
// buffers without the engine knowing which backend is attached.
package emit

// Event represents an observability event emitted during a run.
//
// Standard messages:
//   - "node_scheduled": the node entered the ready frontier
//   - "node_start": the node began executing
//   - "node_end": the node completed
//   - "node_error": the node errored
//   - "node_skipped": the node was skipped because an upstream errored
//   - "breakpoint_hit": the run suspended before this node
//   - "run_end": the run reached a terminal phase
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Seq is the node's sequence index in the compiled order.
	// Negative for run-level events.
	Seq int

	// NodeID identifies which node the event concerns.
	// Empty for run-level events.
	NodeID string

	// Msg is the event name, one of the standard messages above.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "kind": the node kind name
	//   - "duration_ms": execution duration in milliseconds
	//   - "error": error details
	//   - "phase": run phase for run_end events
	Meta map[string]any
}
