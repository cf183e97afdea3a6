package integrations

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(url string) Options {
	return Options{BaseURL: url, Timeout: 2 * time.Second, RetryWait: time.Millisecond, RequestsPerSecond: 1000, Burst: 100}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestGmail_SendEmail(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)
		assert.Equal(t, "Bearer gmail-token", r.Header.Get("Authorization"))
		raw, _ = decodeBody(t, r)["raw"].(string)
		writeJSON(w, http.StatusOK, map[string]any{"id": "msg-1", "threadId": "thr-1"})
	}))
	defer srv.Close()

	out, err := NewGmail(testOptions(srv.URL)).Do(context.Background(), "send_email", map[string]any{
		"to": "jane@example.com", "subject": "Hi", "body": "Hello Jane", "cc": "boss@example.com",
	}, "gmail-token")
	require.NoError(t, err)

	assert.Equal(t, "msg-1", out["messageId"])
	assert.Equal(t, "thr-1", out["threadId"])

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	require.NoError(t, err)
	msg := string(decoded)
	assert.Contains(t, msg, "To: jane@example.com\r\n")
	assert.Contains(t, msg, "Cc: boss@example.com\r\n")
	assert.Contains(t, msg, "Subject: Hi\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nHello Jane"))
	assert.NotContains(t, msg, "Bcc:")
}

func TestBuildMessage_HeaderInjection(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"crlf in to", map[string]any{"to": "jane@example.com\r\nBcc: attacker@evil.test", "subject": "Hi"}},
		{"lf in cc", map[string]any{"to": "jane@example.com", "cc": "a@example.com\nX-Spam: yes"}},
		{"not an address", map[string]any{"to": "jane at example dot com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := buildMessage(tt.params)
			assert.ErrorIs(t, err, ErrInvalidHeader)
			assert.Empty(t, msg)
		})
	}
}

func TestBuildMessage_EncodesSubject(t *testing.T) {
	msg, err := buildMessage(map[string]any{
		"to":      "Jane Doe <jane@example.com>, bob@example.com",
		"subject": "Hi\r\nBcc: attacker@evil.test",
		"body":    "Hello",
	})
	require.NoError(t, err)

	headers, _, ok := strings.Cut(msg, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, headers, "To: \"Jane Doe\" <jane@example.com>, bob@example.com\r\n")
	assert.Contains(t, headers, "Subject: =?utf-8?q?")
	assert.NotContains(t, headers, "\r\nBcc:")
	for _, line := range strings.Split(headers, "\r\n") {
		assert.NotContains(t, line, "\n")
	}
}

func TestGmail_SendEmailRejectsInjectedHeaders(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewGmail(testOptions(srv.URL)).Do(context.Background(), "send_email", map[string]any{
		"to": "jane@example.com\r\nBcc: attacker@evil.test", "subject": "Hi", "body": "x",
	}, "gmail-token")
	assert.ErrorIs(t, err, ErrInvalidHeader)
	assert.False(t, called)
}

func TestGmail_ReceiveEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gmail/v1/users/me/messages":
			assert.Equal(t, "is:unread", r.URL.Query().Get("q"))
			assert.Equal(t, "5", r.URL.Query().Get("maxResults"))
			writeJSON(w, http.StatusOK, map[string]any{"messages": []any{map[string]any{"id": "m1", "threadId": "t1"}}})
		case "/gmail/v1/users/me/messages/m1":
			assert.Equal(t, "metadata", r.URL.Query().Get("format"))
			assert.ElementsMatch(t, []string{"From", "To", "Subject", "Date"}, r.URL.Query()["metadataHeaders"])
			writeJSON(w, http.StatusOK, map[string]any{
				"id": "m1", "threadId": "t1", "snippet": "hello there",
				"payload": map[string]any{"headers": []any{
					map[string]any{"name": "From", "value": "lead@example.com"},
					map[string]any{"name": "Subject", "value": "Pricing"},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := NewGmail(testOptions(srv.URL)).Do(context.Background(), "receive_email", map[string]any{"maxResults": 5}, "tok")
	require.NoError(t, err)

	assert.Equal(t, 1, out["count"])
	emails := out["emails"].([]any)
	first := emails[0].(map[string]any)
	assert.Equal(t, "lead@example.com", first["from"])
	assert.Equal(t, "Pricing", first["subject"])
	assert.Equal(t, "hello there", first["snippet"])
}

func TestGmail_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_token"})
	}))
	defer srv.Close()

	_, err := NewGmail(testOptions(srv.URL)).Do(context.Background(), "send_email",
		map[string]any{"to": "a@b.c", "subject": "s", "body": "b"}, "bad")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "invalid_token")
}

func TestSlack_PostMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb", r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, "#sales", body["channel"])
		assert.Equal(t, "New lead: Jane", body["text"])
		assert.NotContains(t, body, "thread_ts")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": "C123", "ts": "1700000000.0001"})
	}))
	defer srv.Close()

	out, err := NewSlack(testOptions(srv.URL)).Do(context.Background(), "post_message",
		map[string]any{"channel": "#sales", "text": "New lead: Jane"}, "xoxb")
	require.NoError(t, err)
	assert.Equal(t, "C123", out["channel"])
	assert.Equal(t, "1700000000.0001", out["timestamp"])
}

func TestSlack_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "channel_not_found"})
	}))
	defer srv.Close()

	_, err := NewSlack(testOptions(srv.URL)).Do(context.Background(), "post_message",
		map[string]any{"channel": "#nope", "text": "hi"}, "xoxb")

	var slackErr *SlackError
	require.ErrorAs(t, err, &slackErr)
	assert.Equal(t, "channel_not_found", slackErr.Code)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestSlack_ReadChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations.list", r.URL.Path)
		assert.Equal(t, "public_channel", r.URL.Query().Get("types"))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channels": []any{
			map[string]any{"id": "C1", "name": "general", "is_private": false, "num_members": 12},
		}})
	}))
	defer srv.Close()

	out, err := NewSlack(testOptions(srv.URL)).Do(context.Background(), "read_channels", nil, "xoxb")
	require.NoError(t, err)
	assert.Equal(t, 1, out["count"])
	ch := out["channels"].([]any)[0].(map[string]any)
	assert.Equal(t, "general", ch["name"])
}

func TestHubSpot_CreateAndUpdateContact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts":
			props := decodeBody(t, r)["properties"].(map[string]any)
			assert.Equal(t, map[string]any{"email": "jane@example.com", "firstname": "Jane"}, props)
			writeJSON(w, http.StatusCreated, map[string]any{"id": "501", "properties": props})
		case r.Method == http.MethodPatch && r.URL.Path == "/crm/v3/objects/contacts/501":
			props := decodeBody(t, r)["properties"].(map[string]any)
			assert.Equal(t, "customer", props["lifecyclestage"])
			writeJSON(w, http.StatusOK, map[string]any{"id": "501", "properties": props})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	hs := NewHubSpot(testOptions(srv.URL))

	out, err := hs.Do(context.Background(), "create_contact",
		map[string]any{"email": "jane@example.com", "firstname": "Jane", "lastname": ""}, "hs")
	require.NoError(t, err)
	assert.Equal(t, "501", out["contactId"])

	out, err = hs.Do(context.Background(), "update_contact", map[string]any{
		"id": "501", "properties": map[string]any{"lifecyclestage": "customer"},
	}, "hs")
	require.NoError(t, err)
	assert.Equal(t, "501", out["contactId"])
}

func TestHubSpot_CreateDeal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/objects/deals", r.URL.Path)
		props := decodeBody(t, r)["properties"].(map[string]any)
		assert.Equal(t, "1500", props["amount"])
		writeJSON(w, http.StatusCreated, map[string]any{"id": "d-9", "properties": props})
	}))
	defer srv.Close()

	out, err := NewHubSpot(testOptions(srv.URL)).Do(context.Background(), "create_deal",
		map[string]any{"dealname": "Acme", "amount": 1500.0}, "hs")
	require.NoError(t, err)
	assert.Equal(t, "d-9", out["dealId"])
}

func TestClients_UnknownAction(t *testing.T) {
	for _, c := range []Client{NewGmail(Options{}), NewSlack(Options{}), NewHubSpot(Options{})} {
		_, err := c.Do(context.Background(), "teleport", nil, "")
		assert.True(t, errors.Is(err, ErrUnknownAction), c.Name())
	}
}

func TestRESTClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": "C1", "ts": "1"})
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.RetryCount = 3
	_, err := NewSlack(opts).Do(context.Background(), "post_message", map[string]any{"channel": "c", "text": "t"}, "x")

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRESTClient_HonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewSlack(testOptions(srv.URL)).Do(ctx, "post_message", map[string]any{"channel": "c", "text": "t"}, "x")

	require.Error(t, err)
}
