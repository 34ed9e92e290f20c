// Package api exposes the planner over HTTP: session management, blocking
// turns and an SSE stream of turn events.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/session"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// Server holds the handler dependencies.
type Server struct {
	Sessions *session.Service
	Gatherer prometheus.Gatherer
}

// NewHandler builds the router.
func NewHandler(svc *session.Service, gatherer prometheus.Gatherer) http.Handler {
	s := &Server{Sessions: svc, Gatherer: gatherer}
	if s.Gatherer == nil {
		s.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/stats", s.GetStats)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.CreateSession)
		r.Get("/", s.ListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Delete("/", s.DeleteSession)
			r.Get("/state", s.GetState)
			r.Get("/route", s.GetRoute)
			r.Get("/segments", s.GetSegments)
			r.Post("/messages", s.PostMessage)
			r.Post("/resume", s.PostResume)
		})
	})
	r.Post("/chat/stream", s.StreamChat)
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		logx.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(started)).
			Msg("HTTP request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errx.StatusOf(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: errx.MessageOf(err), Kind: string(errx.KindOf(err))})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStats handles GET /stats.
func (s *Server) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Sessions.Registry().Stats())
}

// CreateSession handles POST /sessions.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.Sessions.Registry().Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": info.ID,
		"created_at": info.CreatedAt,
	})
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.Sessions.Registry().List()})
}

type sessionResponse struct {
	session.Info
	Progress model.Progress `json:"progress"`
	Pending  *model.Cursor  `json:"pending,omitempty"`
}

// GetSession handles GET /sessions/{sessionID}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	info, err := s.Sessions.Registry().Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := s.Sessions.State(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Info: info, Progress: state.Progress(), Pending: state.Pending})
}

// DeleteSession handles DELETE /sessions/{sessionID}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Registry().Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetState handles GET /sessions/{sessionID}/state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.Sessions.State(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetRoute handles GET /sessions/{sessionID}/route.
func (s *Server) GetRoute(w http.ResponseWriter, r *http.Request) {
	state, err := s.Sessions.State(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if state.Route == nil {
		writeError(w, errx.NotFound("no route planned yet", nil))
		return
	}
	writeJSON(w, http.StatusOK, state.Route)
}

// GetSegments handles GET /sessions/{sessionID}/segments.
func (s *Server) GetSegments(w http.ResponseWriter, r *http.Request) {
	state, err := s.Sessions.State(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	segs := state.Segments
	if segs == nil {
		segs = []model.Segment{}
	}
	writeJSON(w, http.StatusOK, segs)
}

type messageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// PostMessage handles POST /sessions/{sessionID}/messages.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errx.Validation("invalid request body", err))
		return
	}
	res, err := s.Sessions.Send(r.Context(), chi.URLParam(r, "sessionID"), body.Message, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PostResume handles POST /sessions/{sessionID}/resume.
func (s *Server) PostResume(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sessions.Resume(r.Context(), chi.URLParam(r, "sessionID"), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
