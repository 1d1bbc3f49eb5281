// Package flow provides the core graph model, compiler, and execution
// engine for Autograph workflows.
package flow

import (
	"errors"
	"sort"
	"strings"
)

// Code is a machine-readable error code attached to graph and backend errors.
type Code string

// Graph error codes. All are fatal to compilation and are never retried.
const (
	// CodeDuplicateKind indicates a node kind name was registered twice.
	CodeDuplicateKind Code = "DUPLICATE_KIND"

	// CodeUnknownKind indicates a node references a kind that is not registered.
	CodeUnknownKind Code = "UNKNOWN_KIND"

	// CodeDanglingEdge indicates an edge endpoint references a node id that
	// does not exist in the flow.
	CodeDanglingEdge Code = "DANGLING_EDGE"

	// CodeCyclicGraph indicates the flow graph contains a dependency cycle.
	// At least one participating node id is reported.
	CodeCyclicGraph Code = "CYCLIC_GRAPH"

	// CodeConfigInvalid indicates a node's generation function rejected its
	// resolved configuration.
	CodeConfigInvalid Code = "CONFIG_VALIDATION_FAILED"

	// CodeCodeGenContract indicates a generator produced a fragment whose
	// output binding does not follow the "<node_id>_out" naming contract.
	CodeCodeGenContract Code = "CODEGEN_CONTRACT_VIOLATION"
)

// Backend error codes. These are fatal to the whole run.
const (
	// CodeBackendCompile indicates the backend rejected the compiled program.
	CodeBackendCompile Code = "BACKEND_COMPILE_FAILED"

	// CodeBackendExec indicates the backend failed in a way that is not
	// attributable to a single node's runtime error.
	CodeBackendExec Code = "BACKEND_EXEC_FAILED"
)

// GraphError represents a compile-time error in a flow graph.
//
// Every GraphError carries the node id(s) involved so callers can point at
// the offending nodes. Node ids are kept sorted for stable error text.
type GraphError struct {
	Code    Code
	NodeIDs []string
	Message string

	// Cause is the underlying error, if any (e.g. a config decode failure).
	Cause error
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.NodeIDs) > 0 {
		b.WriteString(" (node ")
		b.WriteString(strings.Join(e.NodeIDs, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *GraphError) Unwrap() error {
	return e.Cause
}

// graphErr builds a GraphError with sorted node ids.
func graphErr(code Code, message string, nodeIDs ...string) *GraphError {
	ids := make([]string, len(nodeIDs))
	copy(ids, nodeIDs)
	sort.Strings(ids)
	return &GraphError{Code: code, NodeIDs: ids, Message: message}
}

// BackendError represents a failure raised by the execution backend.
type BackendError struct {
	Code    Code
	NodeID  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.NodeID != "" {
		return string(e.Code) + ": " + e.Message + " (node " + e.NodeID + ")"
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap returns the underlying cause error.
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err is a GraphError or BackendError carrying code.
func IsCode(err error, code Code) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// ErrRunDone is returned when Resume is called on a run that already finished.
var ErrRunDone = errors.New("run already finished")

// ErrRunActive is returned when Resume is called while the run is advancing.
var ErrRunActive = errors.New("run is already advancing")

// ErrReplaySourceIncomplete is returned when a replay is requested from a
// sequence index but an earlier node in the source run did not complete, so
// its output cannot be pre-satisfied.
var ErrReplaySourceIncomplete = errors.New("replay source run has a non-completed node before the replay point")
