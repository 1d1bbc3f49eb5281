package flow

import "time"

// ExecutionState is the lifecycle state of a single node within a run.
//
// Nodes move Pending -> Executing -> Completed or Errored. Terminal states
// are never revisited. Nodes that never leave Pending may additionally be
// flagged as skipped (an upstream errored) or cancelled (the run's context
// ended before they were scheduled).
type ExecutionState string

const (
	StatePending   ExecutionState = "pending"
	StateExecuting ExecutionState = "executing"
	StateCompleted ExecutionState = "completed"
	StateErrored   ExecutionState = "errored"
)

// Phase is the lifecycle state of a whole run.
type Phase string

const (
	// PhaseNotStarted means the run was created but never resumed.
	PhaseNotStarted Phase = "not_started"

	// PhaseRunning means a Resume call is currently advancing the run.
	PhaseRunning Phase = "running"

	// PhaseSuspended means the run stopped at a breakpoint and is waiting
	// for the next Resume.
	PhaseSuspended Phase = "suspended"

	// PhaseDone means the run reached a terminal state: all reachable
	// nodes finished, or the run was cancelled.
	PhaseDone Phase = "done"
)

// NodeStatus is the externally visible state of one node in a run.
type NodeStatus struct {
	NodeID   string         `json:"node_id"`
	Kind     string         `json:"kind"`
	Seq      int            `json:"seq"`
	State    ExecutionState `json:"state"`
	Output   any            `json:"output,omitempty"`
	Err      string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`

	// Skipped marks a Pending node that will never execute because a
	// transitive upstream errored.
	Skipped bool `json:"skipped,omitempty"`

	// Cancelled marks a Pending node left unscheduled when the run's
	// context was cancelled.
	Cancelled bool `json:"cancelled,omitempty"`
}

// RunResult is a snapshot of a run's observable state, returned by Resume.
type RunResult struct {
	RunID  string                `json:"run_id"`
	Phase  Phase                 `json:"phase"`
	Output any                   `json:"output,omitempty"`
	Nodes  map[string]NodeStatus `json:"nodes"`
	// Timeline holds the entries recorded so far, in sequence order.
	Timeline []TimelineEntry `json:"timeline"`
	// SuspendedAt is the sequence index of the breakpoint node when
	// Phase is PhaseSuspended, nil otherwise.
	SuspendedAt *int `json:"suspended_at,omitempty"`
}
