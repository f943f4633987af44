// ABOUTME: Typed stream events and the line parser that produces them
// ABOUTME: Parse failures are returned as *ParseError and never abort the stream

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/mahakaal/internal/message"
)

// Parse errors
var (
	ErrMalformedLine    = errors.New("malformed event line")
	ErrUnknownEventType = errors.New("unknown event type")
)

// maxQuotedLine bounds how much of a bad line is kept in a ParseError.
const maxQuotedLine = 200

// Kind is the event discriminator carried in the "type" field.
type Kind string

// Event kinds
const (
	KindStatus        Kind = "status"
	KindLog           Kind = "log"
	KindHistoryAppend Kind = "history_append"
	KindAnswer        Kind = "answer"
	KindError         Kind = "error"
)

// Event is one of StatusEvent, LogEvent, HistoryAppendEvent, AnswerEvent
// or ErrorEvent. The set is closed: only this package implements it.
type Event interface {
	Kind() Kind
	sealed()
}

// StatusEvent reports what the agent is doing.
type StatusEvent struct {
	Text string
}

// LogEvent is a diagnostic line with an optional structured payload.
type LogEvent struct {
	Text string
	Data json.RawMessage
}

// HistoryAppendEvent carries a message to insert verbatim into the transcript.
type HistoryAppendEvent struct {
	Message message.Message
	Text    string
}

// AnswerEvent carries the full assistant reply accumulated so far.
type AnswerEvent struct {
	Text string
}

// ErrorEvent is an agent-side error reported in-band.
type ErrorEvent struct {
	Text string
}

func (StatusEvent) Kind() Kind        { return KindStatus }
func (LogEvent) Kind() Kind           { return KindLog }
func (HistoryAppendEvent) Kind() Kind { return KindHistoryAppend }
func (AnswerEvent) Kind() Kind        { return KindAnswer }
func (ErrorEvent) Kind() Kind         { return KindError }

func (StatusEvent) sealed()        {}
func (LogEvent) sealed()           {}
func (HistoryAppendEvent) sealed() {}
func (AnswerEvent) sealed()        {}
func (ErrorEvent) sealed()         {}

// ParseError describes a line that could not be turned into an Event.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Line)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// wireEvent is the JSON shape of one NDJSON record.
type wireEvent struct {
	Type    Kind            `json:"type"`
	Content *string         `json:"content,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Parse decodes one complete line into an Event.
func Parse(line string) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return nil, newParseError(line, fmt.Errorf("%w: %v", ErrMalformedLine, err))
	}

	text := ""
	if w.Content != nil {
		text = *w.Content
	}

	switch w.Type {
	case KindStatus:
		return StatusEvent{Text: text}, nil
	case KindLog:
		return LogEvent{Text: text, Data: payload(w.Data)}, nil
	case KindHistoryAppend:
		data := payload(w.Data)
		if data == nil {
			return nil, newParseError(line, fmt.Errorf("%w: history_append without data", ErrMalformedLine))
		}
		var msg message.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, newParseError(line, fmt.Errorf("%w: history_append data: %v", ErrMalformedLine, err))
		}
		if !msg.Role.Valid() {
			return nil, newParseError(line, fmt.Errorf("%w: history_append role %q", ErrMalformedLine, msg.Role))
		}
		return HistoryAppendEvent{Message: msg, Text: text}, nil
	case KindAnswer:
		return AnswerEvent{Text: text}, nil
	case KindError:
		return ErrorEvent{Text: text}, nil
	case "":
		return nil, newParseError(line, fmt.Errorf("%w: missing type", ErrUnknownEventType))
	default:
		return nil, newParseError(line, fmt.Errorf("%w: %q", ErrUnknownEventType, w.Type))
	}
}

// Encode renders ev as a single NDJSON record including the trailing newline.
func Encode(ev Event) ([]byte, error) {
	w := wireEvent{Type: ev.Kind()}

	switch e := ev.(type) {
	case StatusEvent:
		w.Content = &e.Text
	case LogEvent:
		w.Content = &e.Text
		w.Data = e.Data
	case HistoryAppendEvent:
		data, err := json.Marshal(e.Message)
		if err != nil {
			return nil, fmt.Errorf("marshaling history message: %w", err)
		}
		w.Content = &e.Text
		w.Data = data
	case AnswerEvent:
		w.Content = &e.Text
	case ErrorEvent:
		w.Content = &e.Text
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventType, ev)
	}

	out, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// payload normalizes an absent or JSON null data field to nil.
func payload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}

func newParseError(line string, err error) *ParseError {
	if len(line) > maxQuotedLine {
		line = line[:maxQuotedLine] + "..."
	}
	return &ParseError{Line: line, Err: err}
}
