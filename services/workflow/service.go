package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/integrations"
)

// DefaultRunTimeout bounds runs started without an explicit timeout.
const DefaultRunTimeout = 5 * time.Minute

// WorkflowRepo abstracts workflow persistence for testability.
type WorkflowRepo interface {
	Create(ctx context.Context, wf *Workflow) error
	Get(ctx context.Context, workspaceID, id string) (*Workflow, error)
	List(ctx context.Context, workspaceID string) ([]Workflow, error)
	Update(ctx context.Context, wf *Workflow) error
	Delete(ctx context.Context, workspaceID, id string) error
}

// ExecutionRepo abstracts execution history.
type ExecutionRepo interface {
	Start(ctx context.Context, rec *ExecutionRecord) error
	Finish(ctx context.Context, id string, report *flow.ExecutionReport) error
	Get(ctx context.Context, workspaceID, id string) (*ExecutionRecord, error)
	ListByWorkflow(ctx context.Context, workspaceID, workflowID string, limit int) ([]ExecutionRecord, error)
}

// ConnectionRepo abstracts integration connections.
type ConnectionRepo interface {
	Upsert(ctx context.Context, workspaceID, integration, token string) error
	Delete(ctx context.Context, workspaceID, integration string) error
	Connected(ctx context.Context, workspaceID string) ([]string, error)
}

// Config holds the collaborators a Service runs workflows with.
type Config struct {
	Executor     *flow.Executor
	Integrations *integrations.Registry
	Auth         *Authenticator
	RunTimeout   time.Duration
}

// Service wires together the repositories and the executor for the workflow
// domain and serves them over HTTP.
type Service struct {
	repo         WorkflowRepo
	executions   ExecutionRepo
	connections  ConnectionRepo
	executor     *flow.Executor
	integrations *integrations.Registry
	auth         *Authenticator
	runs         *RunRegistry
	scheduler    *Scheduler
	validate     *validator.Validate
	runTimeout   time.Duration
}

// NewService creates a Service. Zero-valued Config fields get working
// defaults: an executor with no invokers, dev-mode auth and DefaultRunTimeout.
func NewService(repo WorkflowRepo, executions ExecutionRepo, connections ConnectionRepo, cfg Config) *Service {
	if cfg.Executor == nil {
		cfg.Executor = flow.NewExecutor()
	}
	if cfg.Integrations == nil {
		cfg.Integrations = integrations.NewRegistry(nil)
	}
	if cfg.Auth == nil {
		cfg.Auth = NewAuthenticator("")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	return &Service{
		repo:         repo,
		executions:   executions,
		connections:  connections,
		executor:     cfg.Executor,
		integrations: cfg.Integrations,
		auth:         cfg.Auth,
		runs:         NewRunRegistry(),
		validate:     newValidator(),
		runTimeout:   cfg.RunTimeout,
	}
}

// SetScheduler lets the service keep sched in sync as workflows change.
func (s *Service) SetScheduler(sched *Scheduler) { s.scheduler = sched }

// Runs exposes the registry of in-flight runs.
func (s *Service) Runs() *RunRegistry { return s.runs }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("register cronspec validation: %v", err))
	}
	return v
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers the workflow, execution and integration HTTP handlers
// on the given router. All of them require authentication.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	api := parentRouter.NewRoute().Subrouter()
	api.Use(jsonMiddleware, s.auth.Middleware)

	router := api.PathPrefix("/workflows").Subrouter()
	router.StrictSlash(false)
	router.HandleFunc("", s.HandleListWorkflows).Methods("GET")
	router.HandleFunc("", s.HandleCreateWorkflow).Methods("POST")
	router.HandleFunc("/validate", s.HandleValidateGraph).Methods("POST")
	router.HandleFunc("/{id}", s.HandleGetWorkflow).Methods("GET")
	router.HandleFunc("/{id}", s.HandleUpdateWorkflow).Methods("PUT")
	router.HandleFunc("/{id}", s.HandleDeleteWorkflow).Methods("DELETE")
	router.HandleFunc("/{id}/validate", s.HandleValidateWorkflow).Methods("POST")
	router.HandleFunc("/{id}/execute", s.HandleExecuteWorkflow).Methods("POST")
	router.HandleFunc("/{id}/execute/stream", s.HandleStreamWorkflow).Methods("GET")
	router.HandleFunc("/{id}/executions", s.HandleListExecutions).Methods("GET")

	executions := api.PathPrefix("/executions").Subrouter()
	executions.HandleFunc("/{id}", s.HandleGetExecution).Methods("GET")
	executions.HandleFunc("/{id}/cancel", s.HandleCancelExecution).Methods("POST")

	conns := api.PathPrefix("/integrations").Subrouter()
	conns.HandleFunc("", s.HandleListIntegrations).Methods("GET")
	conns.HandleFunc("/{name}/connection", s.HandleConnectIntegration).Methods("PUT")
	conns.HandleFunc("/{name}/connection", s.HandleDisconnectIntegration).Methods("DELETE")
}

// runRequest describes one execution of a stored workflow.
type runRequest struct {
	workflow  *Workflow
	userID    string
	trigger   Trigger
	variables map[string]any
	results   map[string]any
	timeout   time.Duration
	observers []flow.Observer
}

// execute records, runs and finalises one execution. The run is
// registered for cancellation while in flight. An error is returned only
// when the execution could not be recorded; run failures live in the report.
func (s *Service) execute(ctx context.Context, req runRequest) (*ExecutionRecord, error) {
	wf := req.workflow

	vars := make(map[string]any, len(wf.Variables)+len(req.variables))
	maps.Copy(vars, wf.Variables)
	maps.Copy(vars, req.variables)

	ec := flow.NewExecutionContext(wf.WorkspaceID, req.userID, vars)
	ec.ExecutionID = flow.NewExecutionID()
	maps.Copy(ec.Results, req.results)

	rec := &ExecutionRecord{
		ID:          ec.ExecutionID,
		WorkflowID:  wf.ID,
		WorkspaceID: wf.WorkspaceID,
		UserID:      req.userID,
		Trigger:     req.trigger,
	}
	if err := s.executions.Start(ctx, rec); err != nil {
		return nil, err
	}

	timeout := req.timeout
	if timeout <= 0 {
		timeout = s.runTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.runs.Add(rec.ID, wf.WorkspaceID, cancel)
	defer s.runs.Remove(rec.ID)

	report := s.executor.Execute(runCtx, wf.Graph(), ec, req.observers...)

	finishedAt := report.FinishedAt()
	rec.Status = report.Status()
	rec.Report = report
	rec.FinishedAt = &finishedAt

	// The request may already be gone; the outcome is still recorded.
	if err := s.executions.Finish(context.WithoutCancel(ctx), rec.ID, report); err != nil {
		slog.Error("Failed to record execution result", "execution_id", rec.ID, "workflow_id", wf.ID, "error", err)
	}
	return rec, nil
}

// RunScheduled executes wf on behalf of the scheduler.
func (s *Service) RunScheduled(ctx context.Context, wf Workflow) error {
	rec, err := s.execute(ctx, runRequest{workflow: &wf, userID: wf.CreatedBy, trigger: TriggerSchedule})
	if err != nil {
		return err
	}
	slog.Info("Scheduled workflow finished", "workflow_id", wf.ID, "execution_id", rec.ID, "status", rec.Status)
	return nil
}
