package workflow

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

const (
	defaultExecutionsLimit = 20
	maxExecutionsLimit     = 100
)

// HandleExecuteWorkflow runs a stored workflow to completion and returns the
// execution record with its report. The response is 200 whatever the run's
// outcome; invalid graphs are refused with 422 unless force is set.
func (s *Service) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	var req ExecuteRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	wf, ok := s.loadWorkflow(w, r)
	if !ok {
		return
	}
	slog.Debug("Executing workflow", "id", wf.ID, "force", req.Force)

	if !req.Force {
		if result := flow.Validate(wf.Graph()); !result.Valid {
			invalidGraph(w, r, result)
			return
		}
	}

	rec, err := s.execute(r.Context(), runRequest{
		workflow:  wf,
		userID:    p.UserID,
		trigger:   TriggerManual,
		variables: req.Variables,
		results:   req.Results,
		timeout:   time.Duration(req.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		slog.Error("Failed to start execution", "id", wf.ID, "error", err)
		internalError(w, r)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleListExecutions returns recent executions of a workflow. The limit
// query parameter defaults to 20 and is capped at 100.
func (s *Service) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	id := mux.Vars(r)["id"]

	limit := defaultExecutionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = min(n, maxExecutionsLimit)
	}

	list, err := s.executions.ListByWorkflow(r.Context(), p.WorkspaceID, id, limit)
	if err != nil {
		slog.Error("Failed to list executions", "workflow_id", id, "error", err)
		internalError(w, r)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	id := mux.Vars(r)["id"]

	rec, err := s.executions.Get(r.Context(), p.WorkspaceID, id)
	if err != nil {
		slog.Error("Failed to get execution", "id", id, "error", err)
		internalError(w, r)
		return
	}
	if rec == nil {
		notFound(w, r, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleCancelExecution stops an in-flight run. The run finishes with status
// cancelled once the current node returns.
func (s *Service) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	id := mux.Vars(r)["id"]

	if !s.runs.Cancel(p.WorkspaceID, id) {
		notFound(w, r, "no running execution with this id")
		return
	}
	slog.Info("Execution cancel requested", "execution_id", id, "user_id", p.UserID)
	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": id, "status": "cancelling"})
}
