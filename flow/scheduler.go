package flow

import (
	"context"
	"time"

	"github.com/autograph-dev/autograph/flow/emit"
	"github.com/autograph-dev/autograph/flow/store"
)

// Continuous scheduling. Ready steps dispatch to a bounded worker pool the
// moment their dependencies complete, so a slow branch never stalls nodes
// that do not depend on it. Execution order and commit order are decoupled:
// finished steps stage their timeline entries in a buffer, and entries
// reach the store strictly by sequence index once every lower index is
// committed or known to leave a gap. Workers race only on wall time; the
// persisted timeline and all outputs are identical no matter which worker
// finished first.

type stepResult struct {
	seq      int
	output   any
	err      error
	started  time.Time
	duration time.Duration
}

// schedule drives the run until every reachable step is terminal, an armed
// breakpoint becomes ready, the context ends, or the store rejects a
// commit. Returns the armed step's sequence index when the run must
// suspend, -1 otherwise.
func (r *Run) schedule(ctx context.Context) (breakpointSeq int, err error) {
	resCh := make(chan stepResult)
	sem := make(chan struct{}, r.eng.workers)
	inflight := 0
	breakpointSeq = -1

	for {
		if ctx.Err() != nil {
			break
		}
		if breakpointSeq < 0 {
			ready, armed := r.frontier()
			if armed >= 0 {
				breakpointSeq = armed
			}
			for _, seq := range ready {
				r.markExecuting(seq)
				inflight++
				go func(seq int) {
					sem <- struct{}{}
					res := r.executeStep(ctx, seq)
					<-sem
					resCh <- res
				}(seq)
			}
		}
		if inflight == 0 {
			break
		}
		select {
		case res := <-resCh:
			inflight--
			r.finalizeStep(res)
			if ferr := r.flushEntries(ctx); ferr != nil {
				for inflight > 0 {
					r.finalizeStep(<-resCh)
					inflight--
				}
				return -1, ferr
			}
		case <-ctx.Done():
		}
	}

	// Context ended: in-flight steps finish or fail, nothing new starts.
	for inflight > 0 {
		r.finalizeStep(<-resCh)
		inflight--
	}
	return breakpointSeq, nil
}

func (r *Run) markExecuting(seq int) {
	r.mu.Lock()
	r.states[seq] = StateExecuting
	step := r.prog.Steps[seq]
	r.mu.Unlock()

	r.eng.emitter.Emit(emit.Event{
		RunID:  r.ID,
		Seq:    seq,
		NodeID: step.NodeID,
		Msg:    "node_scheduled",
		Meta:   map[string]any{"kind": step.Kind},
	})
}

func (r *Run) executeStep(ctx context.Context, seq int) stepResult {
	step := r.prog.Steps[seq]

	bindings := make(map[string]any, len(step.Inputs))
	r.mu.Lock()
	for i, up := range step.Upstream {
		bindings[step.Inputs[i].Name] = r.outputs[up]
	}
	r.mu.Unlock()

	r.eng.emitter.Emit(emit.Event{
		RunID:  r.ID,
		Seq:    seq,
		NodeID: step.NodeID,
		Msg:    "node_start",
		Meta:   map[string]any{"kind": step.Kind},
	})
	r.eng.metrics.nodeStarted()

	stepCtx := ctx
	if r.eng.nodeTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.eng.nodeTimeout)
		defer cancel()
	}

	started := time.Now()
	output, err := r.session.Step(stepCtx, seq, bindings)
	return stepResult{
		seq:      seq,
		output:   output,
		err:      err,
		started:  started,
		duration: time.Since(started),
	}
}

// finalizeStep commits one finished step: state transition, metrics,
// events, the skip cascade on error, and the timeline entry staged for
// ordered commit. An output the codec cannot capture fails the step the
// same way a runtime error would.
func (r *Run) finalizeStep(res stepResult) {
	step := r.prog.Steps[res.seq]

	entry := TimelineEntry{
		NodeID:    step.NodeID,
		NodeKind:  step.Kind,
		Seq:       res.seq,
		Timestamp: res.started.UTC(),
		Duration:  res.duration,
	}

	if res.err == nil {
		captured, err := EncodeValue(res.output)
		if err != nil {
			res.err = &BackendError{
				Code:    CodeBackendExec,
				NodeID:  step.NodeID,
				Message: "output is not JSON-encodable: " + err.Error(),
				Cause:   err,
			}
		} else {
			entry.Output = captured
		}
	}

	if res.err != nil {
		entry.FinalState = StateErrored
		entry.Detail = res.err.Error()

		r.mu.Lock()
		r.states[res.seq] = StateErrored
		r.errs[res.seq] = res.err.Error()
		r.durs[res.seq] = res.duration
		r.entryBuf[res.seq] = entry
		r.mu.Unlock()

		r.eng.metrics.nodeFinished(step.Kind, StateErrored, res.duration)
		r.eng.emitter.Emit(emit.Event{
			RunID:  r.ID,
			Seq:    res.seq,
			NodeID: step.NodeID,
			Msg:    "node_error",
			Meta: map[string]any{
				"kind":        step.Kind,
				"error":       res.err.Error(),
				"duration_ms": res.duration.Milliseconds(),
			},
		})
		r.cascadeSkip(res.seq)
		return
	}

	entry.FinalState = StateCompleted

	r.mu.Lock()
	r.states[res.seq] = StateCompleted
	r.outputs[res.seq] = res.output
	r.durs[res.seq] = res.duration
	r.entryBuf[res.seq] = entry
	r.mu.Unlock()

	r.eng.metrics.nodeFinished(step.Kind, StateCompleted, res.duration)
	r.eng.emitter.Emit(emit.Event{
		RunID:  r.ID,
		Seq:    res.seq,
		NodeID: step.NodeID,
		Msg:    "node_end",
		Meta: map[string]any{
			"kind":        step.Kind,
			"duration_ms": res.duration.Milliseconds(),
		},
	})
}

// flushEntries drains the staged entries to the store strictly by
// sequence index. An entry is held back until every lower index has
// committed or is known to leave a gap; skipped and cancelled nodes never
// produce an entry, so their indexes are gaps.
func (r *Run) flushEntries(ctx context.Context) error {
	for {
		r.mu.Lock()
		n := len(r.prog.Steps)
		for r.nextCommit < n {
			if _, staged := r.entryBuf[r.nextCommit]; staged {
				break
			}
			if r.states[r.nextCommit] == StatePending && (r.skipped[r.nextCommit] || r.cancelled[r.nextCommit]) {
				r.nextCommit++
				continue
			}
			r.mu.Unlock()
			return nil
		}
		if r.nextCommit >= n {
			r.mu.Unlock()
			return nil
		}
		entry := r.entryBuf[r.nextCommit]
		delete(r.entryBuf, r.nextCommit)
		r.nextCommit++
		r.mu.Unlock()

		if err := r.appendEntry(ctx, entry); err != nil {
			return err
		}
	}
}

func (r *Run) appendEntry(ctx context.Context, entry TimelineEntry) error {
	rec := store.Entry{
		RunID:      r.ID,
		Seq:        entry.Seq,
		NodeID:     entry.NodeID,
		NodeKind:   entry.NodeKind,
		Timestamp:  entry.Timestamp,
		DurationMS: entry.Duration.Milliseconds(),
		State:      string(entry.FinalState),
		Output:     entry.Output,
		Detail:     entry.Detail,
	}
	if err := r.eng.store.AppendEntry(ctx, rec); err != nil {
		return err
	}

	r.mu.Lock()
	r.timeline = append(r.timeline, entry)
	r.mu.Unlock()
	return nil
}

// cascadeSkip marks every transitive dependent of the errored step as
// skipped. Skipped nodes stay Pending and never execute; independent
// branches are untouched.
func (r *Run) cascadeSkip(seq int) {
	var newlySkipped []int

	r.mu.Lock()
	queue := append([]int(nil), r.children[seq]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if r.skipped[next] || r.states[next] != StatePending {
			continue
		}
		r.skipped[next] = true
		newlySkipped = append(newlySkipped, next)
		queue = append(queue, r.children[next]...)
	}
	r.mu.Unlock()

	for _, s := range newlySkipped {
		step := r.prog.Steps[s]
		r.eng.emitter.Emit(emit.Event{
			RunID:  r.ID,
			Seq:    s,
			NodeID: step.NodeID,
			Msg:    "node_skipped",
			Meta:   map[string]any{"kind": step.Kind, "upstream": r.prog.Steps[seq].NodeID},
		})
	}
}
