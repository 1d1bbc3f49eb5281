package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testRun(id string, at time.Time) RunRecord {
	return RunRecord{
		ID:        id,
		FlowName:  "pipeline",
		Backend:   "cpu",
		Input:     []byte(`"seed"`),
		StartedAt: at,
	}
}

func testEntry(runID string, seq int) Entry {
	return Entry{
		RunID:     runID,
		Seq:       seq,
		NodeID:    "n",
		NodeKind:  "task",
		Timestamp: time.Now().UTC(),
		State:     "completed",
		Output:    []byte(`"ok"`),
	}
}

func TestMemory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.CreateRun(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	for _, seq := range []int{0, 1, 3} { // gap at 2: a skipped node leaves no entry
		if err := m.AppendEntry(ctx, testEntry("run-1", seq)); err != nil {
			t.Fatalf("AppendEntry(%d) failed: %v", seq, err)
		}
	}

	t.Run("entries in order", func(t *testing.T) {
		entries, err := m.Entries(ctx, "run-1")
		if err != nil {
			t.Fatalf("Entries failed: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("got %d entries, want 3", len(entries))
		}
		for i := 1; i < len(entries); i++ {
			if entries[i].Seq <= entries[i-1].Seq {
				t.Errorf("entries out of order: %d then %d", entries[i-1].Seq, entries[i].Seq)
			}
		}
	})

	t.Run("run record", func(t *testing.T) {
		rec, err := m.Run(ctx, "run-1")
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if rec.FlowName != "pipeline" || rec.Backend != "cpu" {
			t.Errorf("record = %+v", rec)
		}
	})
}

func TestMemory_AppendOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.CreateRun(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	if err := m.AppendEntry(ctx, testEntry("run-1", 1)); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	t.Run("rejects equal seq", func(t *testing.T) {
		err := m.AppendEntry(ctx, testEntry("run-1", 1))
		if !errors.Is(err, ErrOutOfOrder) {
			t.Errorf("append = %v, want ErrOutOfOrder", err)
		}
	})

	t.Run("rejects lower seq", func(t *testing.T) {
		err := m.AppendEntry(ctx, testEntry("run-1", 0))
		if !errors.Is(err, ErrOutOfOrder) {
			t.Errorf("append = %v, want ErrOutOfOrder", err)
		}
	})

	t.Run("rejects unknown run", func(t *testing.T) {
		err := m.AppendEntry(ctx, testEntry("ghost", 0))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("append = %v, want ErrNotFound", err)
		}
	})
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Run(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Run = %v, want ErrNotFound", err)
	}
	if _, err := m.Entries(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Entries = %v, want ErrNotFound", err)
	}
}

func TestMemory_ListRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Now().UTC()

	for _, r := range []RunRecord{
		testRun("newer", base.Add(time.Minute)),
		testRun("older", base),
		testRun("same-b", base.Add(time.Hour)),
		testRun("same-a", base.Add(time.Hour)),
	} {
		if err := m.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	runs, err := m.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	want := []string{"older", "newer", "same-a", "same-b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}
