package emit

import (
	"testing"
)

func intPtr(v int) *int { return &v }

func TestBufferedEmitter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{RunID: "r1", Seq: 0, NodeID: "a", Msg: "node_start"})
	b.Emit(Event{RunID: "r1", Seq: 0, NodeID: "a", Msg: "node_end"})
	b.Emit(Event{RunID: "r1", Seq: 1, NodeID: "b", Msg: "node_error", Meta: map[string]any{"error": "boom"}})
	b.Emit(Event{RunID: "r2", Seq: 0, NodeID: "x", Msg: "node_start"})

	t.Run("history per run", func(t *testing.T) {
		if got := b.History("r1"); len(got) != 3 {
			t.Errorf("History(r1) = %d events, want 3", len(got))
		}
		if got := b.History("unknown"); got == nil || len(got) != 0 {
			t.Errorf("History(unknown) = %v, want empty non-nil slice", got)
		}
	})

	t.Run("history is a copy", func(t *testing.T) {
		got := b.History("r1")
		got[0].Msg = "mutated"
		if b.History("r1")[0].Msg != "node_start" {
			t.Error("mutating the returned slice leaked into the buffer")
		}
	})

	t.Run("filter by message", func(t *testing.T) {
		got := b.HistoryWithFilter("r1", HistoryFilter{Msg: "node_error"})
		if len(got) != 1 || got[0].NodeID != "b" {
			t.Errorf("filter by msg = %+v", got)
		}
	})

	t.Run("filter by node and seq range", func(t *testing.T) {
		got := b.HistoryWithFilter("r1", HistoryFilter{NodeID: "a", MaxSeq: intPtr(0)})
		if len(got) != 2 {
			t.Errorf("filter = %d events, want 2", len(got))
		}
		got = b.HistoryWithFilter("r1", HistoryFilter{MinSeq: intPtr(1)})
		if len(got) != 1 || got[0].Seq != 1 {
			t.Errorf("MinSeq filter = %+v", got)
		}
	})

	t.Run("clear one run", func(t *testing.T) {
		b.Clear("r1")
		if len(b.History("r1")) != 0 {
			t.Error("Clear(r1) left events behind")
		}
		if len(b.History("r2")) != 1 {
			t.Error("Clear(r1) touched r2")
		}
	})

	t.Run("clear all", func(t *testing.T) {
		b.Clear("")
		if len(b.History("r2")) != 0 {
			t.Error("Clear() left events behind")
		}
	})
}
