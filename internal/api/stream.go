package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// sseWriter frames turn events as server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	failed  bool
}

func (s *sseWriter) send(e model.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		logx.Error().Err(err).Str("event", string(e.Type)).Msg("SSE: event encode failed")
		return
	}
	if e.Type == model.EventError {
		s.failed = true
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Type, b)
	s.flusher.Flush()
}

// StreamChat handles POST /chat/stream. It creates a session when none is
// given and streams the turn's events until it completes or fails.
func (s *Server) StreamChat(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errx.Validation("invalid request body", err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errx.Internal("streaming not supported", nil))
		return
	}

	id := body.SessionID
	if id == "" {
		info, err := s.Sessions.Registry().Create(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		id = info.ID
	} else if !s.Sessions.Registry().Exists(id) {
		writeError(w, errx.NotFound("session not found", fmt.Errorf("session %q", id)))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", id)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	out := &sseWriter{w: w, flusher: flusher}
	logx.Info().Str("session_id", id).Msg("SSE: turn stream opened")
	_, err := s.Sessions.Send(r.Context(), id, body.Message, out.send)
	if err != nil && !out.failed {
		// rejected before the turn started, e.g. a busy session
		out.send(model.Event{
			Type:      model.EventError,
			SessionID: id,
			Error:     errx.MessageOf(err),
			Kind:      string(errx.KindOf(err)),
		})
	}
}
