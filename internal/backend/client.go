// ABOUTME: HTTP client for the agent backend: auth, session CRUD, message persistence and chat
// ABOUTME: Chat returns the streamed NDJSON body unread; other calls decode JSON responses

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/mahakaal/internal/config"
	"github.com/2389/mahakaal/internal/logging"
	"github.com/2389/mahakaal/internal/message"
)

// Errors
var (
	ErrNoBody          = errors.New("response has no body")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrNotFound        = errors.New("not found")
)

// maxErrorBody bounds how much of an error response is read into StatusError.
const maxErrorBody = 4096

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: server returned status %d", e.Op, e.StatusCode)
}

// Is lets callers match 401 and 404 with errors.Is.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// SessionID identifies a chat session. The backend may encode IDs as JSON
// numbers or strings; both decode to the same SessionID.
type SessionID string

// UnmarshalJSON accepts a JSON string or number.
func (id *SessionID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = SessionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("session id must be string or number: %w", err)
	}
	*id = SessionID(n.String())
	return nil
}

// MarshalJSON emits numeric IDs as numbers, others as strings.
func (id SessionID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// SessionInfo describes one stored chat session.
type SessionInfo struct {
	ID           SessionID `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
	MessageCount *int      `json:"message_count,omitempty"`
}

// saveMessageRequest is the body of POST chat/messages.
type saveMessageRequest struct {
	SessionID  SessionID          `json:"session_id"`
	Role       message.Role       `json:"role"`
	Content    *string            `json:"content"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	ToolCalls  []message.ToolCall `json:"tool_calls,omitempty"`
	Name       string             `json:"name,omitempty"`
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for cfg.BaseURL.
func New(cfg config.BackendConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.RequestTimeout,
		http:    http.DefaultClient,
		logger:  slog.Default(),
		now:     time.Now,
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultRequestTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "backend")
	return c
}

// AuthStatus reports whether the backend holds valid credentials. A
// configured JWT bearer token that has already expired short-circuits to
// false without a request.
func (c *Client) AuthStatus(ctx context.Context) (bool, error) {
	if tokenExpired(c.token, c.now()) {
		c.logger.Debug("bearer token expired, skipping auth/status")
		return false, nil
	}

	var out struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := c.doJSON(ctx, "auth status", http.MethodGet, "/auth/status", nil, &out); err != nil {
		return false, err
	}
	return out.Authenticated, nil
}

// IsAuthenticated is AuthStatus with failures reported as false.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	ok, err := c.AuthStatus(ctx)
	if err != nil {
		c.logger.Warn("auth status check failed", "error", err)
		return false
	}
	return ok
}

// LoginURL returns the URL the user must visit to authorize the backend.
func (c *Client) LoginURL(ctx context.Context) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, "auth login", http.MethodGet, "/auth/login", nil, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("auth login: empty url")
	}
	return out.URL, nil
}

// ListSessions returns stored sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	if err := c.doJSON(ctx, "list sessions", http.MethodGet, "/chat/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionsOrEmpty is ListSessions with failures reported as an empty list.
func (c *Client) SessionsOrEmpty(ctx context.Context) []SessionInfo {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		c.logger.Warn("listing sessions failed", "error", err)
		return []SessionInfo{}
	}
	return sessions
}

// CreateSession creates a session. An empty title lets the backend choose one.
func (c *Client) CreateSession(ctx context.Context, title string) (*SessionInfo, error) {
	body := struct {
		Title string `json:"title,omitempty"`
	}{Title: title}

	var out SessionInfo
	if err := c.doJSON(ctx, "create session", http.MethodPost, "/chat/sessions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns the stored messages of a session.
func (c *Client) GetSession(ctx context.Context, id string) ([]message.Message, error) {
	var out struct {
		Messages []message.Message `json:"messages"`
	}
	if err := c.doJSON(ctx, "get session", http.MethodGet, "/chat/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// DeleteSession removes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete session", http.MethodDelete, "/chat/sessions/"+url.PathEscape(id), nil, nil)
}

// SaveMessage persists one message into a session.
func (c *Client) SaveMessage(ctx context.Context, sessionID string, msg message.Message) error {
	body := saveMessageRequest{
		SessionID:  SessionID(sessionID),
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		ToolCalls:  msg.ToolCalls,
		Name:       msg.Name,
	}
	return c.doJSON(ctx, "save message", http.MethodPost, "/chat/messages", body, nil)
}

// Chat posts the transcript and returns the NDJSON response body. The
// caller must close it. Cancelling ctx aborts the stream.
func (c *Client) Chat(ctx context.Context, messages []message.Message) (io.ReadCloser, error) {
	payload, err := json.Marshal(struct {
		Messages []message.Message `json:"messages"`
	}{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newStatusError("chat", resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, fmt.Errorf("chat: %w", ErrNoBody)
	}

	return resp.Body, nil
}

// doJSON performs a bounded request/response call. A nil out discards the body.
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: parsing response: %w", op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"headers", logging.SafeHeaders(req.Header),
	)
	return req, nil
}

// newStatusError builds a StatusError, pulling a message from a JSON
// {"detail"} or {"error"} body when present.
func newStatusError(op string, resp *http.Response) error {
	se := &StatusError{Op: op, StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		se.Message = body.Detail
		if se.Message == "" {
			se.Message = body.Error
		}
	}
	return se
}
