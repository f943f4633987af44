// ABOUTME: Tests for progressive answer printing and update filtering
// ABOUTME: Uses a buffer with colors disabled

package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/2389/mahakaal/internal/conversation"
	"github.com/2389/mahakaal/internal/message"
	"github.com/2389/mahakaal/internal/session"
)

func newTestView(t *testing.T) (*view, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	v := newView(&buf)
	v.begin("ex-1")
	return v, &buf
}

func answerUpdate(exchangeID, text string) session.Update {
	return session.Update{
		Kind:       session.UpdateTranscript,
		ExchangeID: exchangeID,
		Mutation:   conversation.Mutation{Op: conversation.OpReplaced, Message: message.NewAssistant(text)},
	}
}

func TestViewPrintsAnswerDeltas(t *testing.T) {
	v, buf := newTestView(t)

	v.handle(answerUpdate("ex-1", "You"))
	v.handle(answerUpdate("ex-1", "You have"))
	v.handle(answerUpdate("ex-1", "You have no events."))
	v.handle(session.Update{Kind: session.UpdateState, ExchangeID: "ex-1", State: session.StateCompleted})

	assert.Equal(t, "You have no events.\n", buf.String())
}

func TestViewReprintsDivergentAnswer(t *testing.T) {
	v, buf := newTestView(t)

	v.handle(answerUpdate("ex-1", "Hello"))
	v.handle(answerUpdate("ex-1", "Goodbye"))

	assert.Equal(t, "Hello\nGoodbye", buf.String())
}

func TestViewIgnoresOtherExchanges(t *testing.T) {
	v, buf := newTestView(t)

	v.handle(answerUpdate("ex-0", "stale"))
	v.handle(answerUpdate("", "unscoped"))

	assert.Empty(t, buf.String())
}

func TestViewToolCallBreaksAnswer(t *testing.T) {
	v, buf := newTestView(t)

	v.handle(answerUpdate("ex-1", "Let me check"))
	v.handle(session.Update{
		Kind:       session.UpdateTranscript,
		ExchangeID: "ex-1",
		Mutation: conversation.Mutation{Op: conversation.OpAppended, Message: message.Message{
			Role: message.RoleAssistant,
			ToolCalls: []message.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: message.FunctionCall{Name: "list_events", Arguments: `{}`},
			}},
		}},
	})

	assert.Equal(t, "Let me check\n[tool] list_events {}\n", buf.String())
}

func TestViewLogEntries(t *testing.T) {
	v, buf := newTestView(t)

	v.handle(session.Update{Kind: session.UpdateLog, ExchangeID: "ex-1", Entry: session.LogEntry{Kind: session.EntryStatus, Text: "Thinking..."}})
	v.handle(session.Update{Kind: session.UpdateLog, ExchangeID: "ex-1", Entry: session.LogEntry{Kind: session.EntryError, Text: "boom"}})
	v.handle(session.Update{Kind: session.UpdateLog, ExchangeID: "ex-1", Entry: session.LogEntry{Kind: session.EntryParse, Text: "{not json"}})

	assert.Equal(t, "[error] boom\n[skipped] {not json\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "समय है...", truncate("समय है आज कल", 9))
	assert.Equal(t, "déjà vu", truncate("déjà vu", 7))
}

func TestViewRendersMarkdownAnswerOnCompletion(t *testing.T) {
	v, buf := newTestView(t)

	v.handle(answerUpdate("ex-1", "**Standup**"))
	v.handle(answerUpdate("ex-1", "**Standup** at 10"))
	v.handle(session.Update{Kind: session.UpdateState, ExchangeID: "ex-1", State: session.StateCompleted})

	assert.Equal(t, "**Standup** at 10\n────────\nStandup at 10\n", buf.String())
}

func TestViewFailedAnswerIsNotRendered(t *testing.T) {
	v, buf := newTestView(t)

	v.handle(answerUpdate("ex-1", "**Partial**"))
	v.handle(session.Update{Kind: session.UpdateState, ExchangeID: "ex-1", State: session.StateFailed})

	assert.Equal(t, "**Partial**\n", buf.String())
}
