package turngraph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates START has no outgoing edge.
	ErrNoEntryPoint = errors.New("no edge leaves START")

	// ErrDuplicateNode indicates a node name was registered twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrUnknownNode indicates an edge references a node not yet registered.
	ErrUnknownNode = errors.New("unknown node")

	// ErrInvalidNodeID indicates an empty, reserved or malformed node name.
	ErrInvalidNodeID = errors.New("invalid node name")

	// ErrNilHandler indicates AddNode was given a nil NodeFunc.
	ErrNilHandler = errors.New("node handler cannot be nil")

	// ErrNilRouter indicates AddConditionalEdge was given a nil RouterFunc.
	ErrNilRouter = errors.New("router cannot be nil")

	// ErrNoTargets indicates a conditional edge without any label.
	ErrNoTargets = errors.New("conditional edge has no targets")

	// ErrInvalidEdge indicates an edge out of END, into START, or with an
	// empty label.
	ErrInvalidEdge = errors.New("invalid edge")

	// ErrNoOutgoingEdge indicates a node with no way to continue.
	ErrNoOutgoingEdge = errors.New("node has no outgoing edge")

	// ErrMultipleEdges indicates a node with more than one outgoing edge
	// definition.
	ErrMultipleEdges = errors.New("node has more than one outgoing edge definition")

	// ErrNoPathToEnd indicates END cannot be reached from START.
	ErrNoPathToEnd = errors.New("no path from START to END")
)

// Sentinel errors for state schemas and merging.
var (
	// ErrDuplicateField indicates a field was declared twice.
	ErrDuplicateField = errors.New("duplicate state field")

	// ErrInvalidField indicates a Field not built by a field constructor.
	ErrInvalidField = errors.New("invalid state field")

	// ErrUnknownField indicates an update names an undeclared field.
	ErrUnknownField = errors.New("undeclared state field")

	// ErrFieldType indicates an update value of the wrong type.
	ErrFieldType = errors.New("wrong value type for state field")

	// ErrImmutableField indicates an attempt to change an immutable field.
	ErrImmutableField = errors.New("immutable state field already set")
)

// Sentinel errors for execution.
var (
	// ErrRecursionLimit indicates a turn reached the step ceiling.
	ErrRecursionLimit = errors.New("recursion limit reached")

	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrUnknownLabel indicates a router returned a label its edge does
	// not declare.
	ErrUnknownLabel = errors.New("router returned undeclared label")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrNoCheckpoint indicates no checkpoint exists for the thread.
	ErrNoCheckpoint = errors.New("no checkpoint for thread")

	// ErrInvalidResumeNode indicates the checkpoint names a node the graph
	// does not have.
	ErrInvalidResumeNode = errors.New("invalid resume node")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// GraphValidationError collects every problem found while building or
// compiling a graph.
type GraphValidationError struct {
	Problems []error
}

// Error implements the error interface.
func (e *GraphValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "invalid graph: " + strings.Join(msgs, "; ")
}

// Unwrap exposes each problem to errors.Is/As.
func (e *GraphValidationError) Unwrap() []error {
	return e.Problems
}

// MergeError reports an update that could not be merged into state.
type MergeError struct {
	// Field is the state field named by the update.
	Field string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	return fmt.Sprintf("merge field %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MergeError) Unwrap() error {
	return e.Err
}

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// ThreadID is the conversation thread being checkpointed.
	ThreadID string
	// NodeID is the node where checkpointing failed.
	NodeID string
	// Op is the operation that failed ("save", "load", "serialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for thread %s at node %s: %v", e.Op, e.ThreadID, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
//
// Op is "execute" for handler failures, "route" for router failures and
// "merge" when the returned Update does not fit the schema.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed.
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError captures the state when a turn was cancelled.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// State is the state at cancellation.
	State State
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if cancellation occurred during node execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RoutingError reports a router label with no declared target.
// It is fatal to the turn and never retried.
type RoutingError struct {
	// FromNode is the node owning the conditional edge.
	FromNode string
	// Returned is the label the router produced.
	Returned Label
	// Declared lists the labels the edge accepts.
	Declared []Label
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("router from %s returned %q, want one of %v", e.FromNode, e.Returned, e.Declared)
}

// Unwrap returns ErrUnknownLabel for errors.Is support.
func (e *RoutingError) Unwrap() error {
	return ErrUnknownLabel
}

// RecursionLimitError reports a turn that would have exceeded its step
// ceiling. Exactly Ceiling node invocations happened before it.
type RecursionLimitError struct {
	// Ceiling is the configured step limit.
	Ceiling int
	// LastNodeID is the last node that executed.
	LastNodeID string
	// NextNodeID is the node that would have executed next.
	NextNodeID string
	// State is the state at termination.
	State State
}

// Error implements the error interface.
func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("recursion limit of %d steps reached before node %s", e.Ceiling, e.NextNodeID)
}

// Unwrap returns ErrRecursionLimit for errors.Is support.
func (e *RecursionLimitError) Unwrap() error {
	return ErrRecursionLimit
}
