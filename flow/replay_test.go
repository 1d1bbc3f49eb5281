package flow

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// TestReplayFrom_Equivalence verifies replaying from the middle of a
// completed run reproduces the original outputs exactly.
func TestReplayFrom_Equivalence(t *testing.T) {
	prog := compileDiamond(t)
	eng := New(&stubBackend{}, fixedRunIDs("replay"))
	ctx := context.Background()

	src, err := eng.Execute(ctx, prog, "seed")
	if err != nil {
		t.Fatalf("source Execute failed: %v", err)
	}

	run, err := eng.ReplayFrom(ctx, prog, src.RunID, 2)
	if err != nil {
		t.Fatalf("ReplayFrom failed: %v", err)
	}
	res, err := run.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if res.Phase != PhaseDone {
		t.Fatalf("phase = %s, want done", res.Phase)
	}
	if res.Output != src.Output {
		t.Errorf("replay output = %v, want %v", res.Output, src.Output)
	}

	srcEntries, err := eng.Store().Entries(ctx, src.RunID)
	if err != nil {
		t.Fatalf("source Entries failed: %v", err)
	}
	gotEntries, err := eng.Store().Entries(ctx, res.RunID)
	if err != nil {
		t.Fatalf("replay Entries failed: %v", err)
	}
	if len(gotEntries) != len(srcEntries) {
		t.Fatalf("replay has %d entries, source %d", len(gotEntries), len(srcEntries))
	}
	for i := range gotEntries {
		if !bytes.Equal(gotEntries[i].Output, srcEntries[i].Output) {
			t.Errorf("entry %d output %s, want %s", i, gotEntries[i].Output, srcEntries[i].Output)
		}
	}

	t.Run("prefix keeps the captured timestamps", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if !gotEntries[i].Timestamp.Equal(srcEntries[i].Timestamp) {
				t.Errorf("entry %d timestamp changed", i)
			}
		}
	})
}

func TestReplayFrom_Validation(t *testing.T) {
	prog := compileDiamond(t)
	ctx := context.Background()

	t.Run("range check", func(t *testing.T) {
		eng := New(&stubBackend{})
		for _, from := range []int{-1, len(prog.Steps) + 1} {
			if _, err := eng.ReplayFrom(ctx, prog, "whatever", from); err == nil {
				t.Errorf("ReplayFrom(%d) accepted an out-of-range point", from)
			}
		}
	})

	t.Run("unknown source run", func(t *testing.T) {
		eng := New(&stubBackend{})
		if _, err := eng.ReplayFrom(ctx, prog, "missing", 1); err == nil {
			t.Error("ReplayFrom accepted an unknown run")
		}
	})

	t.Run("incomplete source", func(t *testing.T) {
		eng := New(&stubBackend{fail: map[string]error{"b": errors.New("boom")}})
		src, err := eng.Execute(ctx, prog, nil)
		if err != nil {
			t.Fatalf("source Execute failed: %v", err)
		}
		// b (seq 1) errored, so any replay point past it is rejected.
		_, err = eng.ReplayFrom(ctx, prog, src.RunID, 2)
		if !errors.Is(err, ErrReplaySourceIncomplete) {
			t.Errorf("ReplayFrom = %v, want ErrReplaySourceIncomplete", err)
		}
	})
}
