package flow

import (
	"time"

	"github.com/autograph-dev/autograph/flow/emit"
	"github.com/autograph-dev/autograph/flow/store"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	eng := flow.New(
//	    backend,
//	    flow.WithWorkers(8),
//	    flow.WithStore(st),
//	    flow.WithEmitter(emit.NewLogEmitter(os.Stderr, true)),
//	)
type Option func(*Engine)

// WithWorkers bounds how many nodes may execute concurrently.
//
// Default: 4. A value of 1 makes execution fully sequential. Concurrency
// never affects outputs or timeline order; it only affects wall time.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithStore sets the timeline store. Default: an in-memory store.
func WithStore(s store.TimelineStore) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithEmitter sets the observability emitter. Default: a NullEmitter.
func WithEmitter(em emit.Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithMetrics attaches Prometheus metrics. Default: no metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithNodeTimeout bounds each node's execution time. A node exceeding the
// timeout is marked Errored; independent branches keep running.
//
// Default: 0 (no timeout).
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.nodeTimeout = d
		}
	}
}

// WithRunIDFunc overrides run id generation. Default: random UUIDs.
// Tests use this to get predictable run ids.
func WithRunIDFunc(f func() string) Option {
	return func(e *Engine) {
		if f != nil {
			e.newRunID = f
		}
	}
}
