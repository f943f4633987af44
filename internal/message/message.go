// ABOUTME: Message and ToolCall types for conversation turns sent to and received from the agent
// ABOUTME: Enforces the non-empty user content invariant at construction time

package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyContent is returned when a user message would carry no text.
var ErrEmptyContent = errors.New("user message content is empty")

// ErrMissingToolCallID is returned when a tool message has no tool_call_id.
var ErrMissingToolCallID = errors.New("tool message requires tool_call_id")

// Role identifies who produced a message.
type Role string

// Role constants
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// FunctionCall is the function half of a tool call request.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one invocation request attached to an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// Message is a single conversation turn.
type Message struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewUser builds a user message. Whitespace-only text is rejected.
func NewUser(text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyContent
	}
	return Message{Role: RoleUser, Content: &text}, nil
}

// NewAssistant builds an assistant message carrying reply text.
func NewAssistant(text string) Message {
	return Message{Role: RoleAssistant, Content: &text}
}

// Text returns the content, or "" when content is null.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasContent reports whether content is non-null.
func (m Message) HasContent() bool {
	return m.Content != nil
}

// Validate checks the per-role invariants.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("unknown role %q", m.Role)
	}
	switch m.Role {
	case RoleUser:
		if m.Content == nil || strings.TrimSpace(*m.Content) == "" {
			return ErrEmptyContent
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return ErrMissingToolCallID
		}
	}
	return nil
}

// Clone returns a deep copy so snapshots can cross goroutines safely.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		c := *m.Content
		out.Content = &c
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	return out
}

// CloneAll deep-copies a slice of messages.
func CloneAll(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Key returns a stable identity for deduplicating persistence of
// structural messages. Tool results are keyed by their call ID, tool-call
// requests by the IDs they carry. Other messages have no stable identity
// and return "".
func (m Message) Key() string {
	switch {
	case m.Role == RoleTool && m.ToolCallID != "":
		return "tool:" + m.ToolCallID
	case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
		ids := make([]string, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			ids[i] = tc.ID
		}
		return "calls:" + strings.Join(ids, ",")
	}
	return ""
}

// UnmarshalJSON keeps an explicit null content distinct from a missing role check.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Role == "" {
		return errors.New("message missing role")
	}
	*m = Message(raw)
	return nil
}
