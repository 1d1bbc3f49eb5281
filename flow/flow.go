package flow

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Position is the editor canvas coordinate of a node. It is carried through
// serialization untouched and has no effect on compilation or execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single workflow node: a kind name, an id unique within the
// flow, and the kind-specific configuration document.
type Node struct {
	ID         string         `json:"id"`
	Kind       string         `json:"type_name"`
	Config     map[string]any `json:"config"`
	Position   *Position      `json:"position,omitempty"`
	Breakpoint bool           `json:"breakpoint,omitempty"`
}

// Edge is a directed data dependency: Target consumes Source's output.
// Handles identify editor ports and do not affect semantics.
type Edge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// Flow is a complete workflow document: the two top-level collections and
// nothing else. Flows serialize to JSON losslessly so that a document can
// round-trip through storage and the editor without drift.
//
// Example:
//
//	f, err := flow.Parse(data)
//	if err != nil {
//	    return err
//	}
//	prog, err := flow.Compile(f, flow.Builtins())
type Flow struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Parse decodes a JSON flow document.
func Parse(data []byte) (*Flow, error) {
	var f Flow
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse flow: %w", err)
	}
	return &f, nil
}

// Marshal encodes the flow as JSON.
func (f *Flow) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}
	return data, nil
}

// NodeByID returns the node with the given id, or nil if absent.
func (f *Flow) NodeByID(id string) *Node {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i]
		}
	}
	return nil
}

// Snapshot returns a deep copy of the flow. Runs operate on a snapshot so
// concurrent edits to the source document never affect an active run.
func (f *Flow) Snapshot() (*Flow, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("snapshot flow: %w", err)
	}
	var cp Flow
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("snapshot flow: %w", err)
	}
	return &cp, nil
}
