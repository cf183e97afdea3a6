package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one scheduled firing of a workflow.
type RunFunc func(ctx context.Context, wf Workflow) error

// ScheduledLister lists the workflows that carry a cron schedule.
type ScheduledLister interface {
	ListScheduled(ctx context.Context) ([]Workflow, error)
}

// Scheduler fires workflows on their cron schedule. A firing is skipped
// while the previous firing of the same workflow is still running.
type Scheduler struct {
	cron *cron.Cron
	run  RunFunc

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

func NewScheduler(run RunFunc) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		run:     run,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// Load schedules every workflow lister returns. Workflows with an invalid
// schedule are logged and skipped.
func (s *Scheduler) Load(ctx context.Context, lister ScheduledLister) error {
	list, err := lister.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	for _, wf := range list {
		if err := s.Schedule(wf); err != nil {
			slog.Error("Skipping workflow with invalid schedule", "id", wf.ID, "schedule", wf.Schedule, "error", err)
		}
	}
	slog.Info("Schedules loaded", "count", s.Len())
	return nil
}

// Schedule adds or replaces the entry for wf. An empty schedule removes it.
func (s *Scheduler) Schedule(wf Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[wf.ID]; ok {
		s.cron.Remove(id)
		delete(s.entries, wf.ID)
	}
	if wf.Schedule == "" {
		return nil
	}

	id, err := s.cron.AddFunc(wf.Schedule, func() { s.fire(wf) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", wf.Schedule, err)
	}
	s.entries[wf.ID] = id
	return nil
}

func (s *Scheduler) Unschedule(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[workflowID]; ok {
		s.cron.Remove(id)
		delete(s.entries, workflowID)
	}
}

func (s *Scheduler) fire(wf Workflow) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	slog.Info("Running scheduled workflow", "id", wf.ID, "workspace_id", wf.WorkspaceID)
	if err := s.run(ctx, wf); err != nil {
		slog.Error("Scheduled workflow failed to start", "id", wf.ID, "error", err)
	}
}

// Start begins firing. Runs started by the scheduler inherit ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts firing and returns a context that is done once running jobs
// have returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entry returns the cron entry of a scheduled workflow, whose Next field
// holds its next firing time once the scheduler is running.
func (s *Scheduler) Entry(workflowID string) (cron.Entry, bool) {
	s.mu.Lock()
	id, ok := s.entries[workflowID]
	s.mu.Unlock()
	if !ok {
		return cron.Entry{}, false
	}
	return s.cron.Entry(id), true
}
