// ABOUTME: HTTP handlers for the reference backend: auth, sessions, messages and chat
// ABOUTME: Routes map one-to-one onto the client's backend operations

package fakeagent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/mahakaal/internal/auth"
	"github.com/2389/mahakaal/internal/config"
	"github.com/2389/mahakaal/internal/message"
	"github.com/2389/mahakaal/internal/metrics"
	"github.com/2389/mahakaal/internal/store"
)

const (
	onlineMessage   = "Mahakaal Agent is Online. Time flows."
	loginSubject    = "local-user"
	loginTokenTTL   = 24 * time.Hour
	maxRequestBytes = 1 << 20
)

// SessionResponse is the JSON shape of a session.
type SessionResponse struct {
	ID           int64             `json:"id"`
	Title        string            `json:"title"`
	CreatedAt    string            `json:"created_at"`
	UpdatedAt    string            `json:"updated_at"`
	MessageCount *int              `json:"message_count,omitempty"`
}

// SessionDetailResponse is a session together with its messages.
type SessionDetailResponse struct {
	SessionResponse
	Messages []message.Message `json:"messages"`
}

// SaveMessageRequest is the JSON body of POST /chat/messages.
type SaveMessageRequest struct {
	SessionID  json.RawMessage    `json:"session_id"`
	Role       message.Role       `json:"role"`
	Content    *string            `json:"content"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	ToolCalls  []message.ToolCall `json:"tool_calls,omitempty"`
	Name       string             `json:"name,omitempty"`
}

// ChatRequest is the JSON body of POST /chat.
type ChatRequest struct {
	Messages []message.Message `json:"messages"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records one exchange per chat request.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCallIDs overrides tool call ID generation.
func WithCallIDs(next func() string) Option {
	return func(s *Server) { s.callID = next }
}

// Server implements the backend HTTP API.
type Server struct {
	store    store.Store
	verifier *auth.JWTVerifier
	pace     rate.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	callID   func() string
	handler  http.Handler
}

// New creates a backend over st configured by cfg.
func New(st store.Store, cfg config.FakeBackendConfig, opts ...Option) *Server {
	s := &Server{
		store:  st,
		pace:   rate.Inf,
		logger: slog.Default(),
		callID: newCallID,
	}
	if cfg.JWTSecret != "" {
		s.verifier = auth.NewJWTVerifier([]byte(cfg.JWTSecret))
	}
	if cfg.WordsPerSecond > 0 {
		s.pace = rate.Limit(cfg.WordsPerSecond)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "fakeagent")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /auth/status", s.handleAuthStatus)
	mux.HandleFunc("GET /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/callback", s.handleCallback)
	mux.HandleFunc("GET /chat/sessions", s.handleListSessions)
	mux.HandleFunc("POST /chat/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /chat/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /chat/sessions/{id}", s.handleRenameSession)
	mux.HandleFunc("DELETE /chat/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /chat/messages", s.handleSaveMessage)
	mux.HandleFunc("POST /chat", s.handleChat)

	var h http.Handler = mux
	if s.verifier != nil {
		h = auth.OptionalMiddleware(s.verifier, s.logger)(h)
	}
	s.handler = h
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// authenticated reports whether r may use calendar tools.
func (s *Server) authenticated(r *http.Request) bool {
	return s.verifier == nil || auth.SubjectFromContext(r.Context()) != ""
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": onlineMessage})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"authenticated": s.authenticated(r)})
}

// handleLogin returns the URL that issues a token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.sendJSONError(w, http.StatusNotFound, "authentication is not enabled on this server")
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"url": fmt.Sprintf("%s://%s/auth/callback", scheme, r.Host),
	})
}

// handleCallback issues a bearer token for the local user.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.sendJSONError(w, http.StatusNotFound, "authentication is not enabled on this server")
		return
	}

	token, err := s.verifier.Generate(loginSubject, loginTokenTTL)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("issued login token", "subject", loginSubject)
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context(), 0)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess, true))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	sess, err := s.store.CreateSession(r.Context(), req.Title)
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("session created", "session_id", sess.ID, "title", sess.Title)
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess, true))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionIDFromPath(w, r)
	if !ok {
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.storeError(w, "get session", err)
		return
	}

	msgs, err := s.store.GetSessionMessages(r.Context(), id)
	if err != nil {
		s.storeError(w, "get session messages", err)
		return
	}

	s.writeJSON(w, http.StatusOK, SessionDetailResponse{
		SessionResponse: toSessionResponse(sess, false),
		Messages:        msgs,
	})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionIDFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.Title) == "" {
		s.sendJSONError(w, http.StatusBadRequest, "title is required")
		return
	}

	sess, err := s.store.UpdateSessionTitle(r.Context(), id, strings.TrimSpace(req.Title))
	if err != nil {
		s.storeError(w, "rename session", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionResponse(sess, true))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionIDFromPath(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		s.storeError(w, "delete session", err)
		return
	}

	s.logger.Info("session deleted", "session_id", id)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted"})
}

func (s *Server) handleSaveMessage(w http.ResponseWriter, r *http.Request) {
	var req SaveMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := parseSessionID(req.SessionID)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "session_id must be an integer")
		return
	}

	msg := message.Message{
		Role:       req.Role,
		Content:    req.Content,
		ToolCallID: req.ToolCallID,
		ToolCalls:  req.ToolCalls,
		Name:       req.Name,
	}
	if err := msg.Validate(); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SaveMessage(r.Context(), id, msg); err != nil {
		s.storeError(w, "save message", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		s.sendJSONError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	started := time.Now()
	a := &agentRun{
		limiter:       rate.NewLimiter(s.pace, 1),
		authenticated: s.authenticated(r),
		callID:        s.callID,
		emit:          ndjsonEmitter(w, flusher),
	}

	err := a.respond(r.Context(), req.Messages)
	outcome := metrics.OutcomeCompleted
	if err != nil {
		outcome = metrics.OutcomeFailed
		s.logger.Warn("chat stream ended early", "error", err)
	}
	s.metrics.ExchangeFinished(outcome, time.Since(started))
	s.logger.Info("chat served", "messages", len(req.Messages), "outcome", outcome, "duration", time.Since(started))
}

func (s *Server) sessionIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "session id must be an integer")
		return 0, false
	}
	return id, true
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.logger.Error("store operation failed", "op", op, "error", err)
	s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

// sendJSONError writes an error body in the {"detail": ...} shape clients expect.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
}

// parseSessionID accepts a JSON number or a string of digits.
func parseSessionID(raw json.RawMessage) (int64, error) {
	text := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	return strconv.ParseInt(text, 10, 64)
}

func toSessionResponse(sess *store.Session, withCount bool) SessionResponse {
	resp := SessionResponse{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
		UpdatedAt: sess.UpdatedAt.Format(time.RFC3339),
	}
	if withCount {
		count := sess.MessageCount
		resp.MessageCount = &count
	}
	return resp
}
