package integrations

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Jeffail/gabs/v2"
)

const slackBaseURL = "https://slack.com/api"

// SlackError is a Slack Web API answer with ok=false. Code is Slack's error
// string, e.g. "channel_not_found".
type SlackError struct {
	Method string
	Code   string
}

func (e *SlackError) Error() string { return "slack: " + e.Method + ": " + e.Code }

// Slack posts and reads messages through the Slack Web API.
type Slack struct {
	rest *restClient
}

func NewSlack(opts Options) *Slack {
	return &Slack{rest: newRESTClient("slack", slackBaseURL, opts)}
}

func (s *Slack) Name() string          { return "slack" }
func (s *Slack) DefaultAction() string { return "post_message" }

func (s *Slack) Do(ctx context.Context, action string, params map[string]any, token string) (map[string]any, error) {
	switch action {
	case "post_message":
		return s.postMessage(ctx, params, token)
	case "read_channels":
		return s.readChannels(ctx, params, token)
	case "read_messages":
		return s.readMessages(ctx, params, token)
	}
	return nil, unknownAction(s.Name(), action)
}

// call sends a Web API method and unwraps the ok/error envelope.
func (s *Slack) call(ctx context.Context, req request, method string) (*gabs.Container, error) {
	req.path = "/" + method
	out, err := s.rest.do(ctx, req)
	if err != nil {
		return nil, err
	}
	c := gabs.Wrap(out)
	if ok, _ := c.S("ok").Data().(bool); !ok {
		code, _ := c.S("error").Data().(string)
		if code == "" {
			code = "unknown_error"
		}
		return nil, &SlackError{Method: method, Code: code}
	}
	return c, nil
}

func (s *Slack) postMessage(ctx context.Context, params map[string]any, token string) (map[string]any, error) {
	body := map[string]any{
		"channel": str(params, "channel"),
		"text":    str(params, "text"),
	}
	if ts := str(params, "thread_ts"); ts != "" {
		body["thread_ts"] = ts
	}

	c, err := s.call(ctx, request{method: http.MethodPost, token: token, body: body}, "chat.postMessage")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"channel":   c.S("channel").Data(),
		"timestamp": c.S("ts").Data(),
	}, nil
}

func (s *Slack) readChannels(ctx context.Context, params map[string]any, token string) (map[string]any, error) {
	types := str(params, "types")
	if types == "" {
		types = "public_channel"
	}
	c, err := s.call(ctx, request{
		method: http.MethodGet,
		token:  token,
		query:  map[string]string{"types": types, "limit": strconv.Itoa(intParam(params, "limit", 100))},
	}, "conversations.list")
	if err != nil {
		return nil, err
	}

	channels := []any{}
	for _, ch := range c.S("channels").Children() {
		channels = append(channels, map[string]any{
			"id":          ch.S("id").Data(),
			"name":        ch.S("name").Data(),
			"isPrivate":   ch.S("is_private").Data(),
			"memberCount": ch.S("num_members").Data(),
		})
	}
	return map[string]any{"channels": channels, "count": len(channels)}, nil
}

func (s *Slack) readMessages(ctx context.Context, params map[string]any, token string) (map[string]any, error) {
	c, err := s.call(ctx, request{
		method: http.MethodGet,
		token:  token,
		query: map[string]string{
			"channel": str(params, "channel"),
			"limit":   strconv.Itoa(intParam(params, "limit", 20)),
		},
	}, "conversations.history")
	if err != nil {
		return nil, err
	}

	messages := []any{}
	for _, m := range c.S("messages").Children() {
		messages = append(messages, map[string]any{
			"user":      m.S("user").Data(),
			"text":      m.S("text").Data(),
			"timestamp": m.S("ts").Data(),
		})
	}
	return map[string]any{"messages": messages, "count": len(messages)}, nil
}
