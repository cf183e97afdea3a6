package workflow

import (
	"errors"
	"time"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("execution not found")
)

// Workflow is a persisted workflow definition owned by a workspace.
type Workflow struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspaceId"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Nodes       []flow.Node    `json:"nodes"`
	Edges       []flow.Edge    `json:"edges"`
	Variables   map[string]any `json:"variables,omitempty"`
	Schedule    string         `json:"schedule,omitempty"`
	CreatedBy   string         `json:"createdBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Graph builds the executable graph for this workflow.
func (w *Workflow) Graph() *flow.Graph {
	return flow.NewGraph(w.Nodes, w.Edges)
}

// Trigger records what started an execution.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerStream   Trigger = "stream"
)

// StatusRunning marks an execution that has started but not finished.
const StatusRunning flow.Status = "running"

// ExecutionRecord is one stored run of a workflow.
type ExecutionRecord struct {
	ID          string                `json:"id"`
	WorkflowID  string                `json:"workflowId"`
	WorkspaceID string                `json:"workspaceId"`
	UserID      string                `json:"userId,omitempty"`
	Trigger     Trigger               `json:"trigger"`
	Status      flow.Status           `json:"status"`
	Report      *flow.ExecutionReport `json:"report,omitempty"`
	StartedAt   time.Time             `json:"startedAt"`
	FinishedAt  *time.Time            `json:"finishedAt,omitempty"`
}

// WorkflowRequest is the body of create and update calls.
type WorkflowRequest struct {
	Name        string         `json:"name" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=2000"`
	Nodes       []flow.Node    `json:"nodes" validate:"required,min=1,dive"`
	Edges       []flow.Edge    `json:"edges" validate:"dive"`
	Variables   map[string]any `json:"variables"`
	Schedule    string         `json:"schedule" validate:"omitempty,cronspec"`
}

// ExecuteRequest is the body of an execute call. All fields are optional.
type ExecuteRequest struct {
	Variables      map[string]any `json:"variables"`
	Results        map[string]any `json:"results"`
	Force          bool           `json:"force"`
	TimeoutSeconds int            `json:"timeoutSeconds" validate:"gte=0,lte=3600"`
}

// ValidateRequest is the body of an ad-hoc validation call.
type ValidateRequest struct {
	Nodes []flow.Node `json:"nodes" validate:"dive"`
	Edges []flow.Edge `json:"edges" validate:"dive"`
}

// ValidationResponse wraps a validation result with the graph size.
type ValidationResponse struct {
	flow.ValidationResult
	NodeCount int `json:"nodeCount"`
	EdgeCount int `json:"edgeCount"`
}
