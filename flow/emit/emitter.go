package emit

// Emitter receives and processes observability events from run execution.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down node execution
//   - Thread-safe: may be called concurrently from multiple workers
//   - Resilient: handle backend failures without crashing the run
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit must not panic. Errors should be handled internally; the
	// engine never inspects the outcome of an emit.
	Emit(event Event)
}
