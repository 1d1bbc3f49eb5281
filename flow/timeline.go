package flow

import (
	"time"
)

// TimelineEntry records one executed node: what ran, where in the order it
// ran, how long it took, how it ended, and the output it produced.
//
// Entries are appended strictly in sequence-index order regardless of how
// many workers executed nodes concurrently, so two runs of the same program
// produce timelines in the same order. Output holds canonical JSON bytes;
// replay feeds these bytes back verbatim.
type TimelineEntry struct {
	NodeID     string         `json:"node_id"`
	NodeKind   string         `json:"node_kind"`
	Seq        int            `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Duration   time.Duration  `json:"duration"`
	FinalState ExecutionState `json:"final_state"`
	Output     []byte         `json:"output,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}
