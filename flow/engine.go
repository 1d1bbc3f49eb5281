package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autograph-dev/autograph/flow/emit"
	"github.com/autograph-dev/autograph/flow/store"
)

// Engine executes compiled programs against a backend.
//
// The engine owns scheduling, the per-node state machine, timeline
// recording, and observability. The backend only evaluates individual
// steps; everything that makes a run deterministic and inspectable lives
// here.
//
// Example:
//
//	prog, err := flow.Compile(f, flow.Builtins())
//	if err != nil {
//	    return err
//	}
//	eng := flow.New(backend.NewCPU(), flow.WithWorkers(4))
//	res, err := eng.Execute(ctx, prog, input)
type Engine struct {
	backend     Backend
	store       store.TimelineStore
	emitter     emit.Emitter
	metrics     *Metrics
	workers     int
	nodeTimeout time.Duration
	newRunID    func() string
}

// New creates an Engine executing against the given backend.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:  backend,
		store:    store.NewMemory(),
		emitter:  emit.NewNullEmitter(),
		workers:  4,
		newRunID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's timeline store.
func (e *Engine) Store() store.TimelineStore {
	return e.store
}

// Run is a resumable execution of one program.
//
// A Run advances only inside Resume. Between Resume calls it is inert:
// suspended at a breakpoint, or finished. All exported methods are safe
// for concurrent use.
type Run struct {
	// ID is the unique run identifier.
	ID string

	// Name is the flow name the run was started under, if any.
	Name string

	eng     *Engine
	prog    *Program
	session Session

	mu          sync.Mutex
	phase       Phase
	advancing   bool
	states      []ExecutionState
	outputs     []any
	errs        []string
	durs        []time.Duration
	skipped     []bool
	cancelled   []bool
	armed       []bool
	children    [][]int
	timeline    []TimelineEntry
	entryBuf    map[int]TimelineEntry
	nextCommit  int
	suspendedAt int
}

// Start creates a run for the program but does not execute anything.
// Call Resume (or use Execute) to advance it.
func (e *Engine) Start(ctx context.Context, prog *Program, input any) (*Run, error) {
	return e.StartNamed(ctx, "", prog, input)
}

// StartNamed is Start with a flow name recorded on the run.
func (e *Engine) StartNamed(ctx context.Context, name string, prog *Program, input any) (*Run, error) {
	exe, err := e.backend.Compile(ctx, prog)
	if err != nil {
		return nil, err
	}
	session, err := exe.NewSession(input)
	if err != nil {
		return nil, err
	}

	inputJSON, err := EncodeValue(input)
	if err != nil {
		return nil, fmt.Errorf("encode run input: %w", err)
	}

	r := newRun(e, name, prog, session)
	rec := store.RunRecord{
		ID:        r.ID,
		FlowName:  name,
		Backend:   e.backend.Name(),
		Input:     inputJSON,
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}
	return r, nil
}

func newRun(e *Engine, name string, prog *Program, session Session) *Run {
	n := len(prog.Steps)
	r := &Run{
		ID:          e.newRunID(),
		Name:        name,
		eng:         e,
		prog:        prog,
		session:     session,
		phase:       PhaseNotStarted,
		states:      make([]ExecutionState, n),
		outputs:     make([]any, n),
		errs:        make([]string, n),
		durs:        make([]time.Duration, n),
		skipped:     make([]bool, n),
		cancelled:   make([]bool, n),
		armed:       make([]bool, n),
		children:    make([][]int, n),
		entryBuf:    make(map[int]TimelineEntry),
		suspendedAt: -1,
	}
	for i, step := range prog.Steps {
		r.states[i] = StatePending
		r.armed[i] = step.Breakpoint
		for _, up := range step.Upstream {
			r.children[up] = append(r.children[up], i)
		}
	}
	return r
}

// Execute starts a run and resumes it until it finishes, passing straight
// through breakpoints. Use Start/Resume directly when breakpoints should
// yield control to the caller.
func (e *Engine) Execute(ctx context.Context, prog *Program, input any) (*RunResult, error) {
	return e.ExecuteNamed(ctx, "", prog, input)
}

// ExecuteNamed is Execute with a flow name recorded on the run.
func (e *Engine) ExecuteNamed(ctx context.Context, name string, prog *Program, input any) (*RunResult, error) {
	run, err := e.StartNamed(ctx, name, prog, input)
	if err != nil {
		return nil, err
	}
	for {
		res, err := run.Resume(ctx)
		if err != nil || res.Phase != PhaseSuspended {
			return res, err
		}
	}
}

// Phase returns the run's current phase.
func (r *Run) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Result returns a snapshot of the run's observable state.
func (r *Run) Result() *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultLocked()
}

func (r *Run) resultLocked() *RunResult {
	res := &RunResult{
		RunID: r.ID,
		Phase: r.phase,
		Nodes: make(map[string]NodeStatus, len(r.prog.Steps)),
	}
	for i, step := range r.prog.Steps {
		res.Nodes[step.NodeID] = NodeStatus{
			NodeID:    step.NodeID,
			Kind:      step.Kind,
			Seq:       i,
			State:     r.states[i],
			Output:    r.outputs[i],
			Err:       r.errs[i],
			Duration:  r.durs[i],
			Skipped:   r.skipped[i],
			Cancelled: r.cancelled[i],
		}
	}
	res.Timeline = make([]TimelineEntry, len(r.timeline))
	copy(res.Timeline, r.timeline)

	if r.phase == PhaseSuspended {
		at := r.suspendedAt
		res.SuspendedAt = &at
	}
	if n := len(r.prog.Steps); n > 0 && r.states[n-1] == StateCompleted {
		res.Output = r.outputs[n-1]
	}
	return res
}

// Resume advances the run until it suspends at a breakpoint, finishes, or
// the context ends. Returns ErrRunDone when the run already finished and
// ErrRunActive when another Resume is in flight.
func (r *Run) Resume(ctx context.Context) (*RunResult, error) {
	r.mu.Lock()
	if r.phase == PhaseDone {
		r.mu.Unlock()
		return r.resultLockedCopy(), ErrRunDone
	}
	if r.advancing {
		r.mu.Unlock()
		return nil, ErrRunActive
	}
	r.advancing = true
	r.phase = PhaseRunning
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.advancing = false
		r.mu.Unlock()
	}()

	breakpointSeq, err := r.schedule(ctx)
	if err != nil {
		return r.Result(), err
	}
	if ctx.Err() != nil {
		r.cancelRemaining()
		// Steps that were still in flight at cancellation finished after
		// the last flush; their entries commit here, past the gaps the
		// cancelled nodes leave.
		if ferr := r.flushEntries(context.WithoutCancel(ctx)); ferr != nil {
			return r.Result(), ferr
		}
		return r.Result(), ctx.Err()
	}
	if breakpointSeq >= 0 {
		r.suspend(breakpointSeq)
		return r.Result(), nil
	}
	r.finish()
	return r.Result(), nil
}

func (r *Run) resultLockedCopy() *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultLocked()
}

// frontier returns the ready steps in sequence order. When a ready step
// carries an armed breakpoint, its sequence index is returned instead and
// the run must suspend before anything else executes.
func (r *Run) frontier() (ready []int, breakpointSeq int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	breakpointSeq = -1
	for i := range r.prog.Steps {
		if r.states[i] != StatePending || r.skipped[i] || r.cancelled[i] {
			continue
		}
		ok := true
		for _, up := range r.prog.Steps[i].Upstream {
			if r.states[up] != StateCompleted {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if r.armed[i] && breakpointSeq < 0 {
			breakpointSeq = i
		}
		ready = append(ready, i)
	}
	if breakpointSeq >= 0 {
		return nil, breakpointSeq
	}
	return ready, -1
}

func (r *Run) suspend(seq int) {
	r.mu.Lock()
	r.armed[seq] = false
	r.phase = PhaseSuspended
	r.suspendedAt = seq
	nodeID := r.prog.Steps[seq].NodeID
	kind := r.prog.Steps[seq].Kind
	r.mu.Unlock()

	r.eng.emitter.Emit(emit.Event{
		RunID:  r.ID,
		Seq:    seq,
		NodeID: nodeID,
		Msg:    "breakpoint_hit",
		Meta:   map[string]any{"kind": kind},
	})
}

func (r *Run) finish() {
	r.mu.Lock()
	r.phase = PhaseDone
	status := "completed"
	for i := range r.states {
		if r.states[i] == StateErrored {
			status = "errored"
			break
		}
	}
	r.mu.Unlock()

	r.eng.metrics.runFinished(status)
	r.eng.emitter.Emit(emit.Event{
		RunID: r.ID,
		Seq:   -1,
		Msg:   "run_end",
		Meta:  map[string]any{"phase": string(PhaseDone), "status": status},
	})
}

// cancelRemaining marks every unscheduled node cancelled and finishes the
// run. Nodes already in a terminal state keep it.
func (r *Run) cancelRemaining() {
	r.mu.Lock()
	for i := range r.states {
		if r.states[i] == StatePending && !r.skipped[i] {
			r.cancelled[i] = true
		}
	}
	r.phase = PhaseDone
	r.mu.Unlock()

	r.eng.metrics.runFinished("cancelled")
	r.eng.emitter.Emit(emit.Event{
		RunID: r.ID,
		Seq:   -1,
		Msg:   "run_end",
		Meta:  map[string]any{"phase": string(PhaseDone), "status": "cancelled"},
	})
}
