package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"
)

const streamWriteTimeout = 5 * time.Second

// HandleStreamWorkflow runs a workflow over a websocket. The client sends
// one ExecuteRequest message; the server answers with every run event as a
// JSON text message, the last being run_finished with the full report, and
// then closes. Closing the socket early cancels the run.
func (s *Service) HandleStreamWorkflow(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	wf, ok := s.loadWorkflow(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "id", wf.ID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	var req ExecuteRequest
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			conn.Close(websocket.StatusUnsupportedData, "invalid execute request")
			return
		}
	}
	if err := s.validate.Struct(req); err != nil {
		// Close reasons are limited to 123 bytes.
		conn.Close(websocket.StatusPolicyViolation, "invalid execute request")
		return
	}
	if !req.Force {
		if result := flow.Validate(wf.Graph()); !result.Valid {
			conn.Close(websocket.StatusPolicyViolation, "workflow is invalid")
			return
		}
	}

	// Reading stops here; the returned context ends when the client goes away.
	ctx = conn.CloseRead(ctx)

	forward := flow.ObserverFunc(func(ctx context.Context, ev flow.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("Failed to encode event", "execution_id", ev.ExecutionID, "error", err)
			return
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), streamWriteTimeout)
		defer cancel()
		if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
			slog.Debug("Stream client gone", "execution_id", ev.ExecutionID, "error", err)
		}
	})

	rec, err := s.execute(ctx, runRequest{
		workflow:  wf,
		userID:    p.UserID,
		trigger:   TriggerStream,
		variables: req.Variables,
		results:   req.Results,
		timeout:   time.Duration(req.TimeoutSeconds) * time.Second,
		observers: []flow.Observer{forward},
	})
	if err != nil {
		slog.Error("Failed to start streamed execution", "id", wf.ID, "error", err)
		conn.Close(websocket.StatusInternalError, "internal server error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, string(rec.Status))
}
