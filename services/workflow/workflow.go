package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/moogar0880/problems"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

// HandleListWorkflows returns every workflow in the caller's workspace.
func (s *Service) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	list, err := s.repo.List(r.Context(), p.WorkspaceID)
	if err != nil {
		slog.Error("Failed to list workflows", "workspace_id", p.WorkspaceID, "error", err)
		internalError(w, r)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreateWorkflow stores a new workflow. Graph violations do not block
// saving; drafts may be incomplete.
func (s *Service) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	var req WorkflowRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	wf := &Workflow{
		WorkspaceID: p.WorkspaceID,
		CreatedBy:   p.UserID,
	}
	req.apply(wf)

	if err := s.repo.Create(r.Context(), wf); err != nil {
		slog.Error("Failed to create workflow", "workspace_id", p.WorkspaceID, "error", err)
		internalError(w, r)
		return
	}
	s.syncSchedule(*wf)

	slog.Info("Workflow created", "id", wf.ID, "workspace_id", wf.WorkspaceID)
	writeJSON(w, http.StatusCreated, wf)
}

// HandleGetWorkflow loads a workflow definition from the database and returns it as JSON.
func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.loadWorkflow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Service) HandleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	id := mux.Vars(r)["id"]

	var req WorkflowRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	wf := &Workflow{ID: id, WorkspaceID: p.WorkspaceID}
	req.apply(wf)

	err := s.repo.Update(r.Context(), wf)
	if errors.Is(err, ErrWorkflowNotFound) {
		notFound(w, r, "workflow not found")
		return
	}
	if err != nil {
		slog.Error("Failed to update workflow", "id", id, "error", err)
		internalError(w, r)
		return
	}
	s.syncSchedule(*wf)

	writeJSON(w, http.StatusOK, wf)
}

func (s *Service) HandleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	id := mux.Vars(r)["id"]

	err := s.repo.Delete(r.Context(), p.WorkspaceID, id)
	if errors.Is(err, ErrWorkflowNotFound) {
		notFound(w, r, "workflow not found")
		return
	}
	if err != nil {
		slog.Error("Failed to delete workflow", "id", id, "error", err)
		internalError(w, r)
		return
	}
	if s.scheduler != nil {
		s.scheduler.Unschedule(id)
	}

	slog.Info("Workflow deleted", "id", id, "workspace_id", p.WorkspaceID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleValidateGraph validates a graph that has not been saved.
func (s *Service) HandleValidateGraph(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	writeJSON(w, http.StatusOK, validationResponse(flow.NewGraph(req.Nodes, req.Edges)))
}

// HandleValidateWorkflow validates a stored workflow.
func (s *Service) HandleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.loadWorkflow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, validationResponse(wf.Graph()))
}

func validationResponse(g *flow.Graph) ValidationResponse {
	return ValidationResponse{
		ValidationResult: flow.Validate(g),
		NodeCount:        len(g.Nodes()),
		EdgeCount:        len(g.Edges()),
	}
}

func (req WorkflowRequest) apply(wf *Workflow) {
	wf.Name = strings.TrimSpace(req.Name)
	wf.Description = req.Description
	wf.Nodes = req.Nodes
	wf.Edges = req.Edges
	wf.Variables = req.Variables
	wf.Schedule = strings.TrimSpace(req.Schedule)
}

func (s *Service) syncSchedule(wf Workflow) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Schedule(wf); err != nil {
		slog.Error("Failed to schedule workflow", "id", wf.ID, "schedule", wf.Schedule, "error", err)
	}
}

// loadWorkflow fetches the workflow named in the path for the caller's
// workspace, writing the error response itself when it cannot.
func (s *Service) loadWorkflow(w http.ResponseWriter, r *http.Request) (*Workflow, bool) {
	p := mustPrincipal(r)
	id := mux.Vars(r)["id"]
	slog.Debug("Getting workflow", "id", id)

	wf, err := s.repo.Get(r.Context(), p.WorkspaceID, id)
	if err != nil {
		slog.Error("Failed to get workflow", "id", id, "error", err)
		internalError(w, r)
		return nil, false
	}
	if wf == nil {
		notFound(w, r, "workflow not found")
		return nil, false
	}
	return wf, true
}

// decode reads a JSON body into dst and validates it. allowEmpty accepts a
// missing body, leaving dst at its zero value.
func (s *Service) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		err = nil
	}
	if err != nil {
		badRequest(w, r, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		badRequest(w, r, describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

const problemContentType = "application/problem+json"

func writeProblem(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", problemContentType)
	writeJSON(w, status, v)
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, http.StatusBadRequest, problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(r.URL.Path).
		WithType("validation_error").
		WithDetail(detail))
}

func notFound(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, http.StatusNotFound, problems.NewStatusProblem(http.StatusNotFound).
		WithInstance(r.URL.Path).
		WithType("not_found").
		WithDetail(detail))
}

func unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	writeProblem(w, http.StatusUnauthorized, problems.NewStatusProblem(http.StatusUnauthorized).
		WithInstance(r.URL.Path).
		WithType("unauthorized").
		WithDetail(detail))
}

// internalError never exposes the underlying error; callers log it.
func internalError(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, http.StatusInternalServerError, problems.NewStatusProblem(http.StatusInternalServerError).
		WithInstance(r.URL.Path).
		WithType("internal_error").
		WithDetail("internal server error"))
}

// invalidGraphProblem carries the violations that stopped a run.
type invalidGraphProblem struct {
	*problems.Problem
	Violations []flow.Violation `json:"violations"`
}

func invalidGraph(w http.ResponseWriter, r *http.Request, result flow.ValidationResult) {
	writeProblem(w, http.StatusUnprocessableEntity, invalidGraphProblem{
		Problem: problems.NewStatusProblem(http.StatusUnprocessableEntity).
			WithInstance(r.URL.Path).
			WithType("invalid_workflow").
			WithDetail(fmt.Sprintf("workflow has %d violation(s)", len(result.Violations))),
		Violations: result.Violations,
	})
}
