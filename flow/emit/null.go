package emit

// NullEmitter implements Emitter by discarding all events.
//
// Use it when observability output is not wanted, for example in
// benchmarks or short-lived CLI invocations.
type NullEmitter struct{}

// NewNullEmitter creates a new NullEmitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}
