package flow

import (
	"context"
	"time"
)

// EventType names a point in the life of a run.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventNodeStarted   EventType = "node_started"
	EventNodeCompleted EventType = "node_completed"
	EventNodeFailed    EventType = "node_failed"
	EventRunFinished   EventType = "run_finished"
)

// Event is emitted by the executor as a run progresses. Report is only set
// on run_finished.
type Event struct {
	Type           EventType        `json:"type"`
	ExecutionID    string           `json:"executionId"`
	WorkspaceID    string           `json:"workspaceId,omitempty"`
	NodeID         NodeID           `json:"nodeId,omitempty"`
	NodeType       NodeType         `json:"nodeType,omitempty"`
	Status         string           `json:"status,omitempty"`
	Output         any              `json:"output,omitempty"`
	Error          string           `json:"error,omitempty"`
	DurationMillis int64            `json:"durationMs,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
	Report         *ExecutionReport `json:"report,omitempty"`
}

// Observer receives events synchronously on the executor goroutine, in
// emission order. Slow observers slow the run down.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) { f(ctx, event) }
