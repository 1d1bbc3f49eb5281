// Package store provides persistence for runs and their timelines.
//
// A TimelineStore is an append-only record of what each run executed.
// Entries arrive in strict sequence-index order and are read back in the
// same order, which is what makes stored timelines usable as replay
// sources. Output and input payloads are opaque canonical-JSON bytes; the
// store never interprets them.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("store: run not found")

// ErrOutOfOrder is returned when an entry arrives with a sequence index
// at or below the run's last stored entry.
var ErrOutOfOrder = errors.New("store: entry out of sequence order")

// RunRecord identifies one run and the parameters it started with.
type RunRecord struct {
	ID        string    `json:"id"`
	FlowName  string    `json:"flow_name"`
	Backend   string    `json:"backend"`
	Input     []byte    `json:"input,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Entry is one persisted timeline row.
type Entry struct {
	RunID      string    `json:"run_id"`
	Seq        int       `json:"seq"`
	NodeID     string    `json:"node_id"`
	NodeKind   string    `json:"node_kind"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms"`
	State      string    `json:"state"`
	Output     []byte    `json:"output,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// TimelineStore persists runs and timeline entries.
//
// Implementations must reject entries that skip ahead of or repeat the
// run's sequence, and must return entries ordered by sequence index.
type TimelineStore interface {
	// CreateRun registers a new run before its first entry.
	CreateRun(ctx context.Context, run RunRecord) error

	// AppendEntry appends the next timeline entry for a run. The entry's
	// Seq must be strictly greater than the run's last stored entry;
	// gaps are allowed because skipped nodes produce no entry.
	AppendEntry(ctx context.Context, e Entry) error

	// Entries returns the run's timeline in sequence order.
	Entries(ctx context.Context, runID string) ([]Entry, error)

	// Run returns the run record, or ErrNotFound.
	Run(ctx context.Context, runID string) (RunRecord, error)

	// ListRuns returns all run records ordered by start time, oldest first.
	ListRuns(ctx context.Context) ([]RunRecord, error)

	// Close releases underlying resources.
	Close() error
}
