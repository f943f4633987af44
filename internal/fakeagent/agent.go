// ABOUTME: Scripted agent that answers chat requests with NDJSON stream events
// ABOUTME: Calendar questions run a fake tool; other input streams a growing markdown answer

package fakeagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/mahakaal/internal/message"
	"github.com/2389/mahakaal/internal/stream"
)

const notAuthenticatedText = "Not authenticated with Google Calendar. Use /login to connect it."

// calendarTool describes one fake calendar skill.
type calendarTool struct {
	name   string
	status string
	result string
	answer string
}

var (
	listEvents = calendarTool{
		name:   "list_events",
		status: "Searching Calendar...",
		result: "[]",
		answer: "You have no events tomorrow.",
	}
	createEvent = calendarTool{
		name:   "create_event",
		status: "Creating event in Calendar...",
		result: `{"status":"confirmed","id":"evt_1"}`,
		answer: "Done, the event is on your calendar.",
	}
	updateEvent = calendarTool{
		name:   "update_event",
		status: "Updating event in Calendar...",
		result: `{"status":"confirmed","id":"evt_1"}`,
		answer: "Updated, the event has been moved.",
	}

	calendarKeywords = []string{"calendar", "meeting", "event", "schedule", "tomorrow", "today", "agenda"}
	createKeywords   = []string{"schedule", "create", "book", "add"}
	updateKeywords   = []string{"move", "reschedule", "update", "change"}
)

// agentRun answers one chat request.
type agentRun struct {
	limiter       *rate.Limiter
	authenticated bool
	callID        func() string
	emit          func(stream.Event) error
}

func (a *agentRun) respond(ctx context.Context, history []message.Message) error {
	if err := a.emit(stream.StatusEvent{Text: "Thinking..."}); err != nil {
		return err
	}

	question := lastUserText(history)
	tool, ok := pickTool(question)
	if !ok {
		return a.streamAnswer(ctx, echoReply(question))
	}

	if !a.authenticated {
		if err := a.emit(stream.ErrorEvent{Text: notAuthenticatedText}); err != nil {
			return err
		}
		return a.streamAnswer(ctx, "I can't reach your calendar until you log in.")
	}

	return a.runTool(ctx, tool, question)
}

func (a *agentRun) runTool(ctx context.Context, tool calendarTool, question string) error {
	args, err := json.Marshal(map[string]string{"query": question})
	if err != nil {
		return fmt.Errorf("encoding tool arguments: %w", err)
	}

	call := message.ToolCall{
		ID:   a.callID(),
		Type: "function",
		Function: message.FunctionCall{
			Name:      tool.name,
			Arguments: string(args),
		},
	}
	callData, err := json.Marshal(call.Function)
	if err != nil {
		return fmt.Errorf("encoding tool call: %w", err)
	}
	result := tool.result

	events := []stream.Event{
		stream.StatusEvent{Text: tool.status},
		stream.LogEvent{Text: "Calling skill: " + tool.name, Data: callData},
		stream.HistoryAppendEvent{Message: message.Message{
			Role:      message.RoleAssistant,
			ToolCalls: []message.ToolCall{call},
		}},
		stream.LogEvent{Text: "Skill Result: " + result},
		stream.HistoryAppendEvent{Message: message.Message{
			Role:       message.RoleTool,
			Content:    &result,
			ToolCallID: call.ID,
			Name:       tool.name,
		}},
	}
	for _, ev := range events {
		if err := a.emit(ev); err != nil {
			return err
		}
	}

	return a.streamAnswer(ctx, tool.answer)
}

// streamAnswer emits text as a growing sequence of answer events, one
// word at a time, paced by the limiter. Whitespace between words is kept.
func (a *agentRun) streamAnswer(ctx context.Context, text string) error {
	ends := wordEnds(text)
	if len(ends) == 0 {
		return a.emit(stream.AnswerEvent{Text: ""})
	}

	for _, end := range ends {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := a.emit(stream.AnswerEvent{Text: text[:end]}); err != nil {
			return err
		}
	}
	return nil
}

// wordEnds returns the byte offset just past each word of s.
func wordEnds(s string) []int {
	var ends []int
	inWord := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if inWord && space {
			ends = append(ends, i)
		}
		inWord = !space
	}
	if inWord {
		ends = append(ends, len(s))
	}
	return ends
}

func pickTool(question string) (calendarTool, bool) {
	lower := strings.ToLower(question)
	if !containsAny(lower, calendarKeywords) {
		return calendarTool{}, false
	}
	switch {
	case containsAny(lower, updateKeywords):
		return updateEvent, true
	case containsAny(lower, createKeywords):
		return createEvent, true
	default:
		return listEvents, true
	}
}

func lastUserText(history []message.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == message.RoleUser {
			return history[i].Text()
		}
	}
	return ""
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "help") || strings.Contains(lower, "what can you do") {
		return "I can help with your **calendar**:\n\n- list what's coming up\n- schedule a meeting\n- move an event"
	}
	return fmt.Sprintf("You said: **%s**\n\nAsk me about your calendar to see me use a tool.", input)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// ndjsonEmitter writes each event as one line and flushes it.
func ndjsonEmitter(w http.ResponseWriter, flusher http.Flusher) func(stream.Event) error {
	return func(ev stream.Event) error {
		line, err := stream.Encode(ev)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
}
