package flow

import (
	"context"

	"go.jetify.com/typeid"
)

// ExecutionContext is the per-run scratch space. The executor owns it for the
// duration of a run; it must not be shared between concurrent runs.
type ExecutionContext struct {
	ExecutionID string
	WorkspaceID string
	UserID      string
	Variables   map[string]any
	Results     map[string]any // keyed by node id
}

// NewExecutionContext returns a context seeded with a copy of variables.
func NewExecutionContext(workspaceID, userID string, variables map[string]any) *ExecutionContext {
	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}
	return &ExecutionContext{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Variables:   vars,
		Results:     make(map[string]any),
	}
}

// NewExecutionID returns a new prefixed execution identifier.
func NewExecutionID() string {
	id, err := typeid.WithPrefix("exec")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Invocation is what an action or integration receives when its node runs.
// Config has already been rendered against the run's variables and results.
// Variables is the run's live variable map; actions may write to it.
type Invocation struct {
	ExecutionID string
	WorkspaceID string
	UserID      string
	Node        Node
	Config      map[string]any
	Variables   map[string]any
}

// Invoker runs the side effect behind an action or integration node.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) (any, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, inv Invocation) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context, inv Invocation) (any, error) {
	return f(ctx, inv)
}
