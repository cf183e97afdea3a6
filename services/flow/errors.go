package flow

import "errors"

// Sentinel errors for execution-time failures. Each maps to an ErrorKind
// recorded in the execution report.
var (
	ErrNodeActionFailed = errors.New("node action failed")
	ErrNoMatchingBranch = errors.New("no matching branch")
	ErrCycleDetected    = errors.New("cycle detected")
	ErrMissingStartNode = errors.New("missing start node")
	ErrDanglingEdge     = errors.New("dangling edge")
)

// ErrorKind classifies an entry of ExecutionReport.Errors.
type ErrorKind string

const (
	KindNodeActionFailed ErrorKind = "NodeActionFailed"
	KindNoMatchingBranch ErrorKind = "NoMatchingBranch"
	KindCycleDetected    ErrorKind = "CycleDetected"
	KindMissingStartNode ErrorKind = "MissingStartNode"
	KindDanglingEdge     ErrorKind = "DanglingEdge"
)

// WorkflowNodeID is the node id used for failures that belong to the run as
// a whole rather than to one node.
const WorkflowNodeID NodeID = "workflow"

// NodeError is a failure recorded against a node.
type NodeError struct {
	NodeID NodeID    `json:"nodeId"`
	Kind   ErrorKind `json:"kind"`
	Err    string    `json:"error"`
}

func (e NodeError) Error() string {
	return string(e.NodeID) + ": " + e.Err
}

// Is lets errors.Is match a NodeError against the sentinel for its kind.
func (e NodeError) Is(target error) bool {
	return kindSentinel(e.Kind) == target
}

func kindSentinel(k ErrorKind) error {
	switch k {
	case KindNodeActionFailed:
		return ErrNodeActionFailed
	case KindNoMatchingBranch:
		return ErrNoMatchingBranch
	case KindCycleDetected:
		return ErrCycleDetected
	case KindMissingStartNode:
		return ErrMissingStartNode
	case KindDanglingEdge:
		return ErrDanglingEdge
	}
	return nil
}

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrNoMatchingBranch):
		return KindNoMatchingBranch
	case errors.Is(err, ErrCycleDetected):
		return KindCycleDetected
	case errors.Is(err, ErrMissingStartNode):
		return KindMissingStartNode
	case errors.Is(err, ErrDanglingEdge):
		return KindDanglingEdge
	default:
		return KindNodeActionFailed
	}
}
