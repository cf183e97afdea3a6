// Package integrations holds the clients for the external services that
// integration nodes call, and the registry that routes nodes to them.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ErrUnknownAction is returned when a client does not support an action.
var ErrUnknownAction = errors.New("unknown action")

// Client is one external service.
type Client interface {
	Name() string
	// DefaultAction is used when a node does not name an action.
	DefaultAction() string
	Do(ctx context.Context, action string, params map[string]any, token string) (map[string]any, error)
}

// Options configures the HTTP side of a client. Zero values fall back to
// defaults.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RetryCount        int
	RetryWait         time.Duration
	RequestsPerSecond float64
	Burst             int
}

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryWait  = 200 * time.Millisecond
	defaultRatePerSec = 5
	defaultBurst      = 5
)

// APIError is a non-2xx answer from a service.
type APIError struct {
	Integration string
	StatusCode  int
	Body        string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Integration, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Integration, e.StatusCode, e.Body)
}

type workspaceKey struct{}

// WithWorkspace tags ctx with the workspace a call is made for. Clients rate
// limit per workspace; untagged calls share one bucket.
func WithWorkspace(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, workspaceKey{}, workspaceID)
}

func workspaceFrom(ctx context.Context) string {
	id, _ := ctx.Value(workspaceKey{}).(string)
	return id
}

// maxLimiters is how many workspace buckets are kept before full (idle)
// buckets are dropped.
const maxLimiters = 4096

// workspaceLimiters holds one token bucket per workspace so a busy workspace
// cannot starve the others.
type workspaceLimiters struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newWorkspaceLimiters(limit rate.Limit, burst int) *workspaceLimiters {
	return &workspaceLimiters{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (w *workspaceLimiters) get(workspaceID string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l, ok := w.limiters[workspaceID]; ok {
		return l
	}
	if len(w.limiters) >= maxLimiters {
		w.pruneLocked()
	}
	l := rate.NewLimiter(w.limit, w.burst)
	w.limiters[workspaceID] = l
	return l
}

// pruneLocked drops buckets that have refilled; a new bucket starts full, so
// dropping them loses no state.
func (w *workspaceLimiters) pruneLocked() {
	now := time.Now()
	for id, l := range w.limiters {
		if l.TokensAt(now) >= float64(w.burst) {
			delete(w.limiters, id)
		}
	}
}

func (w *workspaceLimiters) Wait(ctx context.Context) error {
	return w.get(workspaceFrom(ctx)).Wait(ctx)
}

// restClient is the shared transport of the concrete clients: a resty client
// that retries throttled and server errors, behind per-workspace token
// buckets.
type restClient struct {
	name     string
	http     *resty.Client
	limiters *workspaceLimiters
}

func newRESTClient(name, defaultBaseURL string, opts Options) *restClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRatePerSec
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return false
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		})

	return &restClient{
		name:     name,
		http:     client,
		limiters: newWorkspaceLimiters(rate.Limit(opts.RequestsPerSecond), opts.Burst),
	}
}

type request struct {
	method string
	path   string
	token  string
	query  map[string]string
	multi  map[string][]string
	body   any
}

// do sends req and decodes a JSON object answer. Non-2xx answers become
// *APIError.
func (c *restClient) do(ctx context.Context, req request) (map[string]any, error) {
	if err := c.limiters.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", c.name, err)
	}

	var out map[string]any
	r := c.http.R().SetContext(ctx).SetResult(&out)
	if req.token != "" {
		r.SetAuthToken(req.token)
	}
	if req.query != nil {
		r.SetQueryParams(req.query)
	}
	for k, vs := range req.multi {
		for _, v := range vs {
			r.QueryParam.Add(k, v)
		}
	}
	if req.body != nil {
		r.SetBody(req.body)
	}

	resp, err := r.Execute(req.method, req.path)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", c.name, req.method, req.path, err)
	}
	if resp.IsError() {
		return nil, &APIError{Integration: c.name, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func unknownAction(integration, action string) error {
	return fmt.Errorf("%s: %w %q", integration, ErrUnknownAction, action)
}

func str(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
