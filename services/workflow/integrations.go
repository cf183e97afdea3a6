package workflow

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/mux"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/integrations"
)

// IntegrationInfo describes an available integration for a workspace.
type IntegrationInfo struct {
	Name          string   `json:"name"`
	DefaultAction string   `json:"defaultAction"`
	Actions       []string `json:"actions"`
	Connected     bool     `json:"connected"`
}

// ConnectRequest stores an access token obtained outside this service.
type ConnectRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
}

func (s *Service) HandleListIntegrations(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	connected, err := s.connections.Connected(r.Context(), p.WorkspaceID)
	if err != nil {
		slog.Error("Failed to list connections", "workspace_id", p.WorkspaceID, "error", err)
		internalError(w, r)
		return
	}

	out := []IntegrationInfo{}
	for _, name := range s.integrations.Names() {
		c, _ := s.integrations.Client(name)
		out = append(out, IntegrationInfo{
			Name:          name,
			DefaultAction: c.DefaultAction(),
			Actions:       integrations.Actions(name),
			Connected:     slices.Contains(connected, name),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) HandleConnectIntegration(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	name := mux.Vars(r)["name"]
	if _, ok := s.integrations.Client(name); !ok {
		notFound(w, r, "unknown integration")
		return
	}

	var req ConnectRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	if err := s.connections.Upsert(r.Context(), p.WorkspaceID, name, req.AccessToken); err != nil {
		slog.Error("Failed to connect integration", "integration", name, "workspace_id", p.WorkspaceID, "error", err)
		internalError(w, r)
		return
	}

	slog.Info("Integration connected", "integration", name, "workspace_id", p.WorkspaceID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) HandleDisconnectIntegration(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	name := mux.Vars(r)["name"]

	if err := s.connections.Delete(r.Context(), p.WorkspaceID, name); err != nil {
		slog.Error("Failed to disconnect integration", "integration", name, "workspace_id", p.WorkspaceID, "error", err)
		internalError(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
