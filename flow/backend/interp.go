// Package backend provides execution backends for compiled programs.
//
// The reference interpreter evaluates the compiler's step list directly
// with the same builtin vocabulary the generated source names
// (http_request, read_file, tensor_new_2d, ...). Two variants exist: CPU
// and GPU. They share one evaluator and differ only in how the matmul
// walks the output matrix, so their results are byte-identical.
//
// Determinism: for an identical (program, input) pair a session produces
// byte-identical canonical-JSON outputs. Wall-clock time, scheduling, and
// backend choice never leak into outputs. Randomness is derived from a
// SHA-256 seed over the program source and the canonical input, keyed per
// node, so parallel execution cannot reorder draws.
package backend

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/autograph-dev/autograph/flow"
)

// Interp is the reference interpreter backend.
type Interp struct {
	name   string
	gpu    bool
	client *http.Client
}

// NewCPU creates the CPU interpreter backend.
func NewCPU() *Interp {
	return &Interp{name: "cpu", client: &http.Client{}}
}

// NewGPU creates the GPU-style interpreter backend. It shares the CPU
// evaluator; only the matmul traversal differs.
func NewGPU() *Interp {
	return &Interp{name: "gpu", gpu: true, client: &http.Client{}}
}

// Select resolves a backend hint to a concrete backend. Resolution is
// deterministic: auto always selects CPU.
func Select(hint flow.Hint) (flow.Backend, error) {
	switch hint {
	case flow.HintAuto, flow.HintCPU, "":
		return NewCPU(), nil
	case flow.HintGPU:
		return NewGPU(), nil
	default:
		return nil, fmt.Errorf("unknown backend hint %q", hint)
	}
}

// Name returns the backend identifier.
func (b *Interp) Name() string {
	return b.name
}

// Compile checks that every step's kind is in the interpreter's
// vocabulary and returns an executable. An unsupported kind fails with
// CodeBackendCompile naming the node.
func (b *Interp) Compile(_ context.Context, prog *flow.Program) (flow.Executable, error) {
	for _, step := range prog.Steps {
		if _, ok := builtinEvals[step.Kind]; !ok {
			return nil, &flow.BackendError{
				Code:    flow.CodeBackendCompile,
				NodeID:  step.NodeID,
				Message: "kind " + step.Kind + " is not supported by the " + b.name + " backend",
			}
		}
	}
	return &executable{backend: b, prog: prog}, nil
}

type executable struct {
	backend *Interp
	prog    *flow.Program
}

// NewSession creates an isolated run session. The session's random seed
// covers the program source and the canonical input, so identical
// (program, input) pairs replay identically.
func (x *executable) NewSession(input any) (flow.Session, error) {
	inputJSON, err := flow.EncodeValue(input)
	if err != nil {
		return nil, &flow.BackendError{
			Code:    flow.CodeBackendCompile,
			Message: "input is not JSON-encodable: " + err.Error(),
			Cause:   err,
		}
	}

	h := sha256.New()
	h.Write([]byte(x.prog.Source))
	h.Write(inputJSON)
	var seed [32]byte
	copy(seed[:], h.Sum(nil))

	return &session{
		backend: x.backend,
		prog:    x.prog,
		input:   input,
		seed:    seed,
	}, nil
}

type session struct {
	backend *Interp
	prog    *flow.Program
	input   any
	seed    [32]byte
}

// Step evaluates one step from its upstream bindings.
func (s *session) Step(ctx context.Context, seq int, bindings map[string]any) (any, error) {
	if seq < 0 || seq >= len(s.prog.Steps) {
		return nil, &flow.BackendError{
			Code:    flow.CodeBackendExec,
			Message: fmt.Sprintf("step index %d out of range", seq),
		}
	}
	step := s.prog.Steps[seq]
	eval, ok := builtinEvals[step.Kind]
	if !ok {
		return nil, &flow.BackendError{
			Code:    flow.CodeBackendExec,
			NodeID:  step.NodeID,
			Message: "kind " + step.Kind + " is not supported",
		}
	}
	return eval(ctx, s, step, bindings)
}

// random returns the node's deterministic draw in [0,1). The draw depends
// only on the session seed and the node id, never on scheduling order.
func (s *session) random(nodeID string) float64 {
	h := sha256.New()
	h.Write(s.seed[:])
	h.Write([]byte(nodeID))
	sum := h.Sum(nil)

	var x uint64
	for i := 0; i < 8; i++ {
		x = x<<8 | uint64(sum[i])
	}
	// 53 bits of mantissa, same construction math/rand uses.
	return float64(x>>11) / (1 << 53)
}

// firstBinding returns the value of the lexicographically first upstream
// binding, mirroring how the compiler resolved the generated source.
func firstBinding(step flow.Step, bindings map[string]any) (any, bool) {
	if len(step.Inputs) == 0 {
		return nil, false
	}
	v, ok := bindings[step.Inputs[0].Name]
	return v, ok
}

func upperMethod(m string) string {
	if m == "" {
		return "GET"
	}
	return strings.ToUpper(m)
}
