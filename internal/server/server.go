// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/user/charterd/internal/gateway"
	"github.com/user/charterd/internal/remote"
	"github.com/user/charterd/internal/state"
	"github.com/user/charterd/internal/types"
)

// TaskHandler fires a named task. message overrides the task's own when
// non-empty.
type TaskHandler func(ctx context.Context, task *state.Task, message string) (string, error)

// Options configures a Server. Only Gateway and Sessions are required.
type Options struct {
	Gateway   *gateway.Gateway
	Sessions  *state.SessionStore
	Journal   types.EventJournal
	Artifacts types.ArtifactStore
	Tasks     *state.TaskStore
	OnTask    TaskHandler
	Card      remote.AgentCard
}

// Server is the orchestrator's HTTP surface.
type Server struct {
	gateway   *gateway.Gateway
	sessions  *state.SessionStore
	journal   types.EventJournal
	artifacts types.ArtifactStore
	tasks     *state.TaskStore
	onTask    TaskHandler
	card      remote.AgentCard
	upgrader  websocket.Upgrader
	mux       *http.ServeMux
}

// New creates a Server with every route registered.
func New(opts Options) *Server {
	s := &Server{
		gateway:   opts.Gateway,
		sessions:  opts.Sessions,
		journal:   opts.Journal,
		artifacts: opts.Artifacts,
		tasks:     opts.Tasks,
		onTask:    opts.OnTask,
		card:      opts.Card,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /.well-known/agent.json", s.handleCard)
	s.mux.HandleFunc("POST /api/chat_stream", s.handleChatStream)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /ws/chat", s.handleWebsocket)
	s.mux.HandleFunc("POST /feedback", s.handleFeedback)
	s.mux.HandleFunc("POST /webhook/{name}", s.handleNamedTask)
	s.mux.HandleFunc("GET /api/sessions", s.handleAPISessions)
	s.mux.HandleFunc("GET /api/sessions/{key}/events", s.handleAPISessionEvents)
	s.mux.HandleFunc("GET /api/sessions/{key}/state", s.handleAPISessionState)
	s.mux.HandleFunc("GET /api/artifacts/{id}", s.handleAPIArtifact)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	card := s.card
	if card.URL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		card.URL = scheme + "://" + r.Host + "/"
	}
	writeJSON(w, http.StatusOK, card)
}

// chatRequest is the body of the chat endpoints and the first websocket frame.
type chatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (req chatRequest) valid() bool {
	return strings.TrimSpace(req.Message) != ""
}

func (req chatRequest) inbound(source string) *types.InboundEvent {
	return &types.InboundEvent{
		Source:    source,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Text:      req.Message,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if !req.valid() {
		http.Error(w, `{"error":"message is required"}`, http.StatusBadRequest)
		return
	}

	resp, err := s.gateway.Submit(r.Context(), req.inbound("http"))
	if err != nil {
		slog.Error("chat request failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

// feedbackRequest is the body of POST /feedback.
type feedbackRequest struct {
	Score  *float64 `json:"score"`
	Text   string   `json:"text"`
	RunID  string   `json:"run_id"`
	UserID string   `json:"user_id"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Score == nil {
		http.Error(w, `{"error":"score is required"}`, http.StatusUnprocessableEntity)
		return
	}
	slog.Info("feedback received",
		"score", *req.Score,
		"text", req.Text,
		"run_id", req.RunID,
		"user_id", req.UserID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// namedTaskRequest is the optional JSON body for POST /webhook/{name}.
type namedTaskRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleNamedTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil || s.onTask == nil {
		http.Error(w, `{"error":"tasks not configured"}`, http.StatusServiceUnavailable)
		return
	}
	name := r.PathValue("name")
	task, err := s.tasks.Get(name)
	if err != nil {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}
	if !task.Enabled {
		http.Error(w, `{"error":"task is disabled"}`, http.StatusForbidden)
		return
	}

	var body namedTaskRequest
	json.NewDecoder(r.Body).Decode(&body)

	resp, err := s.onTask(r.Context(), task, body.Message)
	if err != nil {
		slog.Error("webhook task failed", "task", name, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleAPISessionEvents(w http.ResponseWriter, r *http.Request) {
	key := types.SessionKey(r.PathValue("key"))
	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	var events []*types.Event
	if sess, ok := s.sessions.Get(key); ok {
		events = sess.Events()
		if len(events) > limit {
			events = events[len(events)-limit:]
		}
	} else if s.journal != nil {
		var err error
		events, err = s.journal.Tail(r.Context(), key, limit)
		if err != nil {
			slog.Error("tail events failed", "session_id", string(key), "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
	}
	if events == nil {
		events = []*types.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAPISessionState(w http.ResponseWriter, r *http.Request) {
	key := types.SessionKey(r.PathValue("key"))
	sess, ok := s.sessions.Get(key)
	if !ok {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handleAPIArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		http.Error(w, `{"error":"artifacts not configured"}`, http.StatusServiceUnavailable)
		return
	}
	id := types.ArtifactID(r.PathValue("id"))
	meta, err := s.artifacts.GetMeta(r.Context(), id)
	if err != nil {
		http.Error(w, `{"error":"artifact not found"}`, http.StatusNotFound)
		return
	}
	data, err := s.artifacts.Get(r.Context(), id)
	if err != nil {
		slog.Error("read artifact failed", "artifact_id", string(id), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"meta": meta, "data": data})
}
