// ABOUTME: Tests for stream event parsing and NDJSON encoding
// ABOUTME: Covers all five kinds, malformed lines and unknown types

package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mahakaal/internal/message"
)

func TestParse_Kinds(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{"status", `{"type":"status","content":"Thinking..."}`, StatusEvent{Text: "Thinking..."}},
		{"log without data", `{"type":"log","content":"Skill Result: []"}`, LogEvent{Text: "Skill Result: []"}},
		{"log null data", `{"type":"log","content":"x","data":null}`, LogEvent{Text: "x"}},
		{"answer", `{"type":"answer","content":"Hi there"}`, AnswerEvent{Text: "Hi there"}},
		{"answer null content", `{"type":"answer","content":null}`, AnswerEvent{Text: ""}},
		{"error", `{"type":"error","content":"rate limited"}`, ErrorEvent{Text: "rate limited"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_LogKeepsPayload(t *testing.T) {
	ev, err := Parse(`{"type":"log","content":"tool call","data":{"name":"list_events"}}`)
	require.NoError(t, err)

	logEv, ok := ev.(LogEvent)
	require.True(t, ok)
	assert.Equal(t, KindLog, logEv.Kind())
	assert.JSONEq(t, `{"name":"list_events"}`, string(logEv.Data))
}

func TestParse_HistoryAppend(t *testing.T) {
	line := `{"type":"history_append","content":"Assistant tool call","data":{"role":"assistant","content":null,"tool_calls":[{"id":"1","type":"function","function":{"name":"list_events","arguments":"{}"}}]}}`

	ev, err := Parse(line)
	require.NoError(t, err)

	ha, ok := ev.(HistoryAppendEvent)
	require.True(t, ok)
	assert.Equal(t, "Assistant tool call", ha.Text)
	assert.Equal(t, message.RoleAssistant, ha.Message.Role)
	assert.Nil(t, ha.Message.Content)
	require.Len(t, ha.Message.ToolCalls, 1)
	assert.Equal(t, "list_events", ha.Message.ToolCalls[0].Function.Name)
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"not json", `garbage`, ErrMalformedLine},
		{"truncated", `{"type":"answer","content":"Hi`, ErrMalformedLine},
		{"content not string", `{"type":"status","content":42}`, ErrMalformedLine},
		{"history without data", `{"type":"history_append"}`, ErrMalformedLine},
		{"history bad role", `{"type":"history_append","data":{"role":"system","content":"x"}}`, ErrMalformedLine},
		{"history missing role", `{"type":"history_append","data":{"content":"x"}}`, ErrMalformedLine},
		{"missing type", `{"content":"x"}`, ErrUnknownEventType},
		{"unknown type", `{"type":"thought","content":"x"}`, ErrUnknownEventType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse(tt.line)
			assert.Nil(t, ev)
			assert.ErrorIs(t, err, tt.wantErr)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line)
		})
	}
}

func TestParseError_TruncatesLongLines(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}

	_, err := Parse(string(long))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Len(t, perr.Line, maxQuotedLine+3)
}

func TestEncode_ParsesBack(t *testing.T) {
	content := "[]"
	events := []Event{
		StatusEvent{Text: "Thinking..."},
		LogEvent{Text: "Using Skill: list_events", Data: json.RawMessage(`{"date":"tomorrow"}`)},
		HistoryAppendEvent{Text: "Tool result", Message: message.Message{Role: message.RoleTool, Content: &content, ToolCallID: "1", Name: "list_events"}},
		AnswerEvent{Text: "You have no events tomorrow."},
		ErrorEvent{Text: "boom"},
	}

	var dec Decoder
	for _, ev := range events {
		line, err := Encode(ev)
		require.NoError(t, err)
		assert.Equal(t, byte('\n'), line[len(line)-1])

		lines := dec.Feed(line)
		require.Len(t, lines, 1)

		back, err := Parse(lines[0])
		require.NoError(t, err)
		assert.Equal(t, ev.Kind(), back.Kind())
	}
}
