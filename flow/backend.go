package flow

import "context"

// Hint selects an execution backend by preference rather than identity.
type Hint string

const (
	// HintAuto lets the selector choose. Selection is deterministic:
	// auto always resolves to the CPU backend.
	HintAuto Hint = "auto"

	HintCPU Hint = "cpu"
	HintGPU Hint = "gpu"
)

// Backend compiles programs for execution.
//
// Backends must be deterministic: for an identical (program, input) pair
// the produced outputs are byte-identical as canonical JSON, regardless of
// backend choice, scheduling, or wall-clock time.
type Backend interface {
	// Name returns the backend's identifier ("cpu", "gpu").
	Name() string

	// Compile prepares the program for execution. Compile-time failures
	// return a BackendError with code CodeBackendCompile, carrying the
	// offending node id when determinable.
	Compile(ctx context.Context, prog *Program) (Executable, error)
}

// Executable is a compiled program ready to execute runs.
type Executable interface {
	// NewSession creates an isolated execution session for one run with
	// the given workflow input. Sessions are not safe for concurrent
	// Step calls on the same sequence index, but the engine never issues
	// those; concurrent calls for independent steps must be safe.
	NewSession(input any) (Session, error)
}

// Session executes one run's steps.
type Session interface {
	// Step executes the step at the given sequence index. bindings maps
	// each upstream binding name ("<node_id>_out") to that node's output
	// value. The returned value is the node's output; an error marks the
	// node Errored.
	Step(ctx context.Context, seq int, bindings map[string]any) (any, error)
}
