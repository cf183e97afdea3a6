// Package actions holds the built-in internal actions that action nodes run.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

// MaxDelay bounds the delay action.
const MaxDelay = 5 * time.Minute

// Action runs one kind of action node.
type Action interface {
	Execute(ctx context.Context, inv flow.Invocation) (map[string]any, error)
}

// Registry maps action names to their implementation. It implements
// flow.Invoker.
type Registry map[string]Action

// NewRegistry creates a registry populated with all built-in actions. A nil
// httpClient gets an egress client that refuses internal addresses.
func NewRegistry(httpClient *resty.Client) Registry {
	if httpClient == nil {
		httpClient = NewEgressClient(30 * time.Second)
	}
	return Registry{
		"set_variable": &SetVariableAction{},
		"log":          &LogAction{},
		"http_request": &HTTPRequestAction{client: httpClient},
		"delay":        &DelayAction{},
	}
}

// Invoke runs the action named by config.action, falling back to the node
// label ("Set Variable" resolves to set_variable).
func (r Registry) Invoke(ctx context.Context, inv flow.Invocation) (any, error) {
	name, _ := inv.Config["action"].(string)
	if name == "" {
		name = inv.Node.Label
	}
	name = normalizeName(name)

	action, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", name)
	}
	out, err := action.Execute(ctx, inv)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// SetVariableAction writes into the run's variables. It accepts either
// {name, value} or {variables: {...}}.
type SetVariableAction struct{}

func (a *SetVariableAction) Execute(_ context.Context, inv flow.Invocation) (map[string]any, error) {
	set := make(map[string]any)
	if name, _ := inv.Config["name"].(string); name != "" {
		set[name] = inv.Config["value"]
	}
	if vars, ok := inv.Config["variables"].(map[string]any); ok {
		for k, v := range vars {
			set[k] = v
		}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("set_variable: nothing to set")
	}
	if inv.Variables == nil {
		return nil, fmt.Errorf("set_variable: run has no variable scope")
	}

	for k, v := range set {
		inv.Variables[k] = v
	}
	return map[string]any{
		"message":   fmt.Sprintf("Set %d variable(s)", len(set)),
		"variables": set,
	}, nil
}

// LogAction writes config.message to the structured log.
type LogAction struct{}

func (a *LogAction) Execute(ctx context.Context, inv flow.Invocation) (map[string]any, error) {
	msg, _ := inv.Config["message"].(string)
	level := slog.LevelInfo
	if l, _ := inv.Config["level"].(string); l != "" {
		if err := level.UnmarshalText([]byte(l)); err != nil {
			return nil, fmt.Errorf("log: invalid level %q", l)
		}
	}
	slog.Log(ctx, level, msg, "execution_id", inv.ExecutionID, "node_id", inv.Node.ID, "workspace_id", inv.WorkspaceID)
	return map[string]any{"message": msg}, nil
}

// HTTPRequestAction calls an arbitrary HTTP endpoint. Responses with status
// 400 or above fail the node.
type HTTPRequestAction struct {
	client *resty.Client
}

func (a *HTTPRequestAction) Execute(ctx context.Context, inv flow.Invocation) (map[string]any, error) {
	url, _ := inv.Config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http_request: url is required")
	}
	if u, err := neturl.Parse(url); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("http_request: url must be an absolute http or https URL, got %q", url)
	}
	method, _ := inv.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	req := a.client.R().SetContext(ctx)
	if headers, ok := inv.Config["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.SetHeader(k, fmt.Sprint(v))
		}
	}
	if body, ok := inv.Config["body"]; ok && body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("http_request: %s %s: %w", method, url, err)
	}

	var decoded any = string(resp.Body())
	var parsed any
	if len(resp.Body()) > 0 && json.Unmarshal(resp.Body(), &parsed) == nil {
		decoded = parsed
	}
	if resp.IsError() {
		return nil, fmt.Errorf("http_request: %s %s returned status %d", method, url, resp.StatusCode())
	}

	return map[string]any{
		"message":    fmt.Sprintf("%s %s returned %d", method, url, resp.StatusCode()),
		"statusCode": resp.StatusCode(),
		"body":       decoded,
	}, nil
}

// DelayAction pauses the run. config.duration is a Go duration string or a
// number of seconds.
type DelayAction struct{}

func (a *DelayAction) Execute(ctx context.Context, inv flow.Invocation) (map[string]any, error) {
	d, err := parseDelay(inv.Config["duration"])
	if err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}
	if d > MaxDelay {
		return nil, fmt.Errorf("delay: %s exceeds the maximum of %s", d, MaxDelay)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return map[string]any{"message": fmt.Sprintf("Waited %s", d), "durationMs": d.Milliseconds()}, nil
}

func parseDelay(v any) (time.Duration, error) {
	if s, ok := v.(string); ok {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			return d, nil
		}
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if secs, ok := toFloat64(v); ok && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid duration %v", v)
}

// toFloat64 converts an any value to float64, handling the numeric types
// JSON and YAML decoding produce.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
