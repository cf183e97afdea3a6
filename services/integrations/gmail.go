package integrations

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
)

const gmailBaseURL = "https://gmail.googleapis.com"

// Gmail sends and reads mail through the Gmail REST API.
type Gmail struct {
	rest *restClient
}

func NewGmail(opts Options) *Gmail {
	return &Gmail{rest: newRESTClient("gmail", gmailBaseURL, opts)}
}

func (g *Gmail) Name() string          { return "gmail" }
func (g *Gmail) DefaultAction() string { return "send_email" }

func (g *Gmail) Do(ctx context.Context, action string, params map[string]any, token string) (map[string]any, error) {
	switch action {
	case "send_email":
		return g.send(ctx, params, token)
	case "receive_email":
		query := str(params, "query")
		if query == "" {
			query = "is:unread"
		}
		return g.list(ctx, query, params, token)
	case "search_email":
		return g.list(ctx, str(params, "query"), params, token)
	}
	return nil, unknownAction(g.Name(), action)
}

func (g *Gmail) send(ctx context.Context, params map[string]any, token string) (map[string]any, error) {
	msg, err := buildMessage(params)
	if err != nil {
		return nil, fmt.Errorf("gmail: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString([]byte(msg))

	out, err := g.rest.do(ctx, request{
		method: http.MethodPost,
		path:   "/gmail/v1/users/me/messages/send",
		token:  token,
		body:   map[string]any{"raw": raw},
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"messageId": out["id"],
		"threadId":  out["threadId"],
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ErrInvalidHeader is returned when a message header cannot be written
// safely, such as an address list that does not parse.
var ErrInvalidHeader = errors.New("invalid message header")

// buildMessage renders an RFC 2822 message with an HTML body. Address
// headers must parse as address lists and the subject is written as a MIME
// encoded-word when it is not plain printable ASCII, so rendered values
// cannot add headers of their own.
func buildMessage(params map[string]any) (string, error) {
	var lines []string
	for _, h := range []struct{ name, key string }{
		{"From", "from"}, {"To", "to"}, {"Cc", "cc"}, {"Bcc", "bcc"},
	} {
		v := str(params, h.key)
		if v == "" {
			continue
		}
		addrs, err := formatAddresses(v)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidHeader, h.key, err)
		}
		lines = append(lines, h.name+": "+addrs)
	}
	if subject := str(params, "subject"); subject != "" {
		lines = append(lines, "Subject: "+mime.QEncoding.Encode("utf-8", subject))
	}
	lines = append(lines, "Content-Type: text/html; charset=utf-8", "", str(params, "body"))
	return strings.Join(lines, "\r\n"), nil
}

func formatAddresses(v string) (string, error) {
	if strings.ContainsAny(v, "\r\n") {
		return "", errors.New("line break in address")
	}
	list, err := mail.ParseAddressList(v)
	if err != nil {
		return "", err
	}
	out := make([]string, len(list))
	for i, a := range list {
		if a.Name == "" {
			out[i] = a.Address
		} else {
			out[i] = a.String()
		}
	}
	return strings.Join(out, ", "), nil
}

func (g *Gmail) list(ctx context.Context, query string, params map[string]any, token string) (map[string]any, error) {
	limit := intParam(params, "maxResults", 10)
	listed, err := g.rest.do(ctx, request{
		method: http.MethodGet,
		path:   "/gmail/v1/users/me/messages",
		token:  token,
		query:  map[string]string{"q": query, "maxResults": strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	emails := []any{}
	for _, m := range gabs.Wrap(listed).S("messages").Children() {
		id, _ := m.S("id").Data().(string)
		if id == "" {
			continue
		}
		msg, err := g.rest.do(ctx, request{
			method: http.MethodGet,
			path:   "/gmail/v1/users/me/messages/" + id,
			token:  token,
			query:  map[string]string{"format": "metadata"},
			multi:  map[string][]string{"metadataHeaders": {"From", "To", "Subject", "Date"}},
		})
		if err != nil {
			return nil, err
		}
		emails = append(emails, summarizeMessage(msg))
	}
	return map[string]any{"emails": emails, "count": len(emails)}, nil
}

func summarizeMessage(msg map[string]any) map[string]any {
	c := gabs.Wrap(msg)
	out := map[string]any{
		"id":       c.S("id").Data(),
		"threadId": c.S("threadId").Data(),
		"snippet":  c.S("snippet").Data(),
	}
	for _, h := range c.Search("payload", "headers").Children() {
		name, _ := h.S("name").Data().(string)
		out[strings.ToLower(name)] = h.S("value").Data()
	}
	return out
}
