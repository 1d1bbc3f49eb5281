package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/autograph-dev/autograph/flow/store"
)

// ReplayFrom creates a new run that re-executes a stored run from sequence
// index fromSeq onward. Every step before fromSeq is pre-satisfied with
// the output captured in the source run's timeline, byte for byte, so the
// replayed suffix observes exactly the inputs the original did.
//
// The program must be the same one the source run executed (same flow,
// same registry); the compiler's determinism guarantees the sequence
// indexes line up. The source run must have completed every step before
// fromSeq, otherwise ErrReplaySourceIncomplete is returned.
//
// The returned run is not started; advance it with Resume or drain it:
//
//	run, err := eng.ReplayFrom(ctx, prog, srcID, 3)
//	if err != nil {
//	    return err
//	}
//	res, err := run.Resume(ctx)
func (e *Engine) ReplayFrom(ctx context.Context, prog *Program, sourceRunID string, fromSeq int) (*Run, error) {
	if fromSeq < 0 || fromSeq > len(prog.Steps) {
		return nil, fmt.Errorf("replay point %d out of range [0,%d]", fromSeq, len(prog.Steps))
	}

	src, err := e.store.Run(ctx, sourceRunID)
	if err != nil {
		return nil, fmt.Errorf("load source run: %w", err)
	}
	entries, err := e.store.Entries(ctx, sourceRunID)
	if err != nil {
		return nil, fmt.Errorf("load source timeline: %w", err)
	}

	bySeq := make(map[int]store.Entry, len(entries))
	for _, entry := range entries {
		bySeq[entry.Seq] = entry
	}
	for seq := 0; seq < fromSeq; seq++ {
		entry, ok := bySeq[seq]
		if !ok || entry.State != string(StateCompleted) {
			return nil, fmt.Errorf("%w: node %s (seq %d)",
				ErrReplaySourceIncomplete, prog.Steps[seq].NodeID, seq)
		}
	}

	input, err := DecodeValue(src.Input)
	if err != nil {
		return nil, fmt.Errorf("decode source input: %w", err)
	}

	exe, err := e.backend.Compile(ctx, prog)
	if err != nil {
		return nil, err
	}
	session, err := exe.NewSession(input)
	if err != nil {
		return nil, err
	}

	r := newRun(e, src.FlowName, prog, session)
	rec := store.RunRecord{
		ID:        r.ID,
		FlowName:  src.FlowName,
		Backend:   e.backend.Name(),
		Input:     src.Input,
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("create replay run record: %w", err)
	}

	// Pre-satisfy the prefix: captured outputs become node outputs, and
	// the source entries are copied into the new run's timeline.
	for seq := 0; seq < fromSeq; seq++ {
		entry := bySeq[seq]
		output, err := DecodeValue(entry.Output)
		if err != nil {
			return nil, fmt.Errorf("decode captured output for node %s: %w", entry.NodeID, err)
		}

		r.states[seq] = StateCompleted
		r.outputs[seq] = output
		r.durs[seq] = time.Duration(entry.DurationMS) * time.Millisecond
		r.armed[seq] = false

		copied := TimelineEntry{
			NodeID:     entry.NodeID,
			NodeKind:   entry.NodeKind,
			Seq:        entry.Seq,
			Timestamp:  entry.Timestamp,
			Duration:   time.Duration(entry.DurationMS) * time.Millisecond,
			FinalState: StateCompleted,
			Output:     entry.Output,
			Detail:     entry.Detail,
		}
		if err := r.appendEntry(ctx, copied); err != nil {
			return nil, fmt.Errorf("copy timeline entry: %w", err)
		}
	}
	r.nextCommit = fromSeq
	return r, nil
}
