package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikepack-planner/server/internal/agent/graph"
	"github.com/bikepack-planner/server/internal/agent/graph/llm/llmtest"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline/pipelinetest"
	"github.com/bikepack-planner/server/internal/agent/repo"
	"github.com/bikepack-planner/server/internal/agent/session"
	"github.com/bikepack-planner/server/internal/metrics"
)

type testServer struct {
	handler http.Handler
	svc     *session.Service
	planner *llmtest.Scripted
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	store := repo.NewMemoryCheckpointStore()
	fakes := pipelinetest.NewFakes()
	planner := llmtest.New()
	cfg := model.ChatModelConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 512}
	engine, err := graph.Build(ctx, graph.Config{
		Store:    store,
		Pipeline: fakes.Pipeline(),
		Weather:  fakes.Weather,
		ChatModels: graph.ChatModels{
			Planner:   graph.NodeModel{Chat: planner, Config: cfg},
			Optimiser: graph.NodeModel{Chat: llmtest.New(), Config: cfg},
			Reviewer:  graph.NodeModel{Chat: llmtest.New(), Config: cfg},
			Writer:    graph.NodeModel{Chat: llmtest.New(), Config: cfg},
		},
		LLM:     model.LLMConfig{Backoff: time.Millisecond},
		Metrics: m,
	})
	require.NoError(t, err)

	svc := session.NewService(session.NewRegistry(store, m), engine)
	return &testServer{handler: NewHandler(svc, reg), svc: svc, planner: planner}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var out struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.SessionID)
	return out.SessionID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

// sseEvents parses an event stream into its event names and payloads.
func sseEvents(t *testing.T, body string) ([]string, []model.Event) {
	t.Helper()
	var names []string
	var events []model.Event
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			names = append(names, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			var e model.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
			events = append(events, e)
		}
	}
	return names, events
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)

	rec := s.do(t, http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []session.Info `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, id, list.Sessions[0].ID)

	rec = s.do(t, http.MethodGet, "/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.False(t, got.Progress.HasRequirements)
	assert.Nil(t, got.Pending)

	rec = s.do(t, http.MethodGet, "/sessions/"+id+"/route", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/sessions/"+id+"/segments", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Kind)

	rec = s.do(t, http.MethodDelete, "/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostMessage(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)
	s.planner.Push(llmtest.Text("Where would you like to start?"))

	rec := s.do(t, http.MethodPost, "/sessions/"+id+"/messages", `{"message":"Plan a trip"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res model.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, model.TurnSuspended, res.Status)
	assert.Equal(t, "Where would you like to start?", res.Reply())

	rec = s.do(t, http.MethodGet, "/sessions/"+id+"/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state model.ConversationState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Len(t, state.Messages, 2)

	rec = s.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st session.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.TotalSessions)
	assert.Equal(t, 2, st.TotalMessages)
}

func TestPostMessageErrors(t *testing.T) {
	s := newTestServer(t)
	id := s.createSession(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   string
	}{
		{"malformed body", "/sessions/" + id + "/messages", `{`, http.StatusBadRequest, "validation"},
		{"blank message", "/sessions/" + id + "/messages", `{"message":"   "}`, http.StatusBadRequest, "validation"},
		{"unknown session", "/sessions/missing/messages", `{"message":"hi"}`, http.StatusNotFound, "not_found"},
		{"nothing to resume", "/sessions/" + id + "/resume", ``, http.StatusConflict, "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decodeError(t, rec).Kind)
		})
	}
}

func TestStreamChatCreatesSession(t *testing.T) {
	s := newTestServer(t)
	s.planner.Push(llmtest.Text("Where would you like to start?"))

	rec := s.do(t, http.MethodPost, "/chat/stream", `{"message":"Plan a trip"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	id := rec.Header().Get("X-Session-ID")
	require.NotEmpty(t, id)
	assert.True(t, s.svc.Registry().Exists(id))

	names, events := sseEvents(t, rec.Body.String())
	require.Len(t, events, len(names))
	assert.Equal(t, "processing", names[0])
	assert.Contains(t, names, "message")
	assert.Contains(t, names, "state_update")
	assert.Equal(t, "complete", names[len(names)-1])

	done := events[len(events)-1]
	require.NotNil(t, done.Result)
	assert.Equal(t, id, done.SessionID)
	assert.Equal(t, "Where would you like to start?", done.Result.Reply())
}

func TestStreamChatErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/chat/stream", `{"message":"hi","session_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Kind)

	id := s.createSession(t)
	rec = s.do(t, http.MethodPost, "/chat/stream", `{"message":"  ","session_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	names, events := sseEvents(t, rec.Body.String())
	require.NotEmpty(t, names)
	assert.Equal(t, "error", names[len(names)-1])
	assert.Equal(t, "validation", events[len(events)-1].Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createSession(t)

	rec := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "planner_active_sessions 1")
}
