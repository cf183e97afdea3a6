package integrations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

// Config holds per-service options for the default clients.
type Config struct {
	Gmail   Options
	Slack   Options
	HubSpot Options
}

// Registry routes integration nodes to their client. It implements
// flow.Invoker.
type Registry struct {
	clients map[string]Client
	tokens  TokenSource
}

// NewRegistry creates a registry over the given clients.
func NewRegistry(tokens TokenSource, clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client), tokens: tokens}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// NewDefaultRegistry creates a registry with the Gmail, Slack and HubSpot
// clients.
func NewDefaultRegistry(tokens TokenSource, cfg Config) *Registry {
	return NewRegistry(tokens, NewGmail(cfg.Gmail), NewSlack(cfg.Slack), NewHubSpot(cfg.HubSpot))
}

// Register adds or replaces the client for c.Name().
func (r *Registry) Register(c Client) {
	r.clients[c.Name()] = c
}

func (r *Registry) Client(name string) (Client, bool) {
	c, ok := r.clients[name]
	return c, ok
}

// Names returns the registered integration names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the action named by config.action, or the client's default
// action, with the remaining config as parameters.
func (r *Registry) Invoke(ctx context.Context, inv flow.Invocation) (any, error) {
	name := inv.Node.Integration
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("unknown integration %q", name)
	}

	action, _ := inv.Config["action"].(string)
	if action == "" {
		action = client.DefaultAction()
	}
	params := make(map[string]any, len(inv.Config))
	for k, v := range inv.Config {
		if k != "action" {
			params[k] = v
		}
	}

	if err := ValidateParams(name, action, params); err != nil {
		return nil, err
	}

	var token string
	if r.tokens != nil {
		t, err := r.tokens.Token(ctx, inv.WorkspaceID, name)
		if err != nil {
			return nil, err
		}
		token = t
	}

	start := time.Now()
	out, err := client.Do(WithWorkspace(ctx, inv.WorkspaceID), action, params, token)
	logger := slog.With("integration", name, "action", action, "node_id", inv.Node.ID, "execution_id", inv.ExecutionID)
	if err != nil {
		logger.Warn("Integration call failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	logger.Debug("Integration call succeeded", "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}
