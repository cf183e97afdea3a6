package workflow

import (
	"context"
	"sync"
)

// RunRegistry tracks in-flight runs of this process so they can be
// cancelled. Runs on other replicas are not visible.
type RunRegistry struct {
	mu   sync.Mutex
	runs map[string]activeRun
}

type activeRun struct {
	workspaceID string
	cancel      context.CancelFunc
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]activeRun)}
}

func (r *RunRegistry) Add(executionID, workspaceID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[executionID] = activeRun{workspaceID: workspaceID, cancel: cancel}
}

func (r *RunRegistry) Remove(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, executionID)
}

// Cancel stops the run if it belongs to workspaceID. It reports whether a
// run was found.
func (r *RunRegistry) Cancel(workspaceID, executionID string) bool {
	r.mu.Lock()
	run, ok := r.runs[executionID]
	r.mu.Unlock()
	if !ok || run.workspaceID != workspaceID {
		return false
	}
	run.cancel()
	return true
}

// CancelAll stops every in-flight run, for shutdown.
func (r *RunRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		run.cancel()
	}
}

func (r *RunRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
