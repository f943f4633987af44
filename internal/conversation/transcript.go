// ABOUTME: Conversation transcript and the reconciler that folds stream events into it
// ABOUTME: Answer events coalesce into one tracked slot; structural events reset the slot

package conversation

import (
	"errors"
	"fmt"

	"github.com/2389/mahakaal/internal/message"
	"github.com/2389/mahakaal/internal/stream"
)

// ErrNotUserMessage is returned by AppendUser for non-user roles.
var ErrNotUserMessage = errors.New("not a user message")

// noTarget marks the absence of a coalesce target.
const noTarget = -1

// Op describes how Apply changed the transcript.
type Op int

// Mutation operations
const (
	OpNone Op = iota
	OpAppended
	OpReplaced
)

func (o Op) String() string {
	switch o {
	case OpAppended:
		return "appended"
	case OpReplaced:
		return "replaced"
	default:
		return "none"
	}
}

// Mutation reports the effect of one reconciliation step. Index and
// Message are only meaningful when Op is not OpNone.
type Mutation struct {
	Op      Op
	Index   int
	Message message.Message
}

// Transcript is the ordered message history of one conversation.
//
// The coalesce target is the slot that subsequent answer events replace.
// Only an answer event sets it; any other append clears it, so the target
// is always the final message when present. Transcript is not safe for
// concurrent use; the session controller serializes access.
type Transcript struct {
	messages []message.Message
	target   int
}

// New creates a transcript seeded with history (for example, a session
// loaded from the backend). The history is copied.
func New(history []message.Message) *Transcript {
	return &Transcript{
		messages: message.CloneAll(history),
		target:   noTarget,
	}
}

// AppendUser adds a user turn and clears the coalesce target.
func (t *Transcript) AppendUser(msg message.Message) (Mutation, error) {
	if msg.Role != message.RoleUser {
		return Mutation{Op: OpNone, Index: noTarget}, fmt.Errorf("%w: role %q", ErrNotUserMessage, msg.Role)
	}
	if err := msg.Validate(); err != nil {
		return Mutation{Op: OpNone, Index: noTarget}, err
	}
	t.target = noTarget
	return t.append(msg), nil
}

// Apply folds one stream event into the transcript.
func (t *Transcript) Apply(ev stream.Event) Mutation {
	switch e := ev.(type) {
	case stream.StatusEvent, stream.LogEvent, stream.ErrorEvent:
		return Mutation{Op: OpNone, Index: noTarget}

	case stream.HistoryAppendEvent:
		t.target = noTarget
		return t.append(e.Message)

	case stream.AnswerEvent:
		reply := message.NewAssistant(e.Text)
		if t.target != noTarget {
			t.messages[t.target] = reply
			return Mutation{Op: OpReplaced, Index: t.target, Message: reply.Clone()}
		}
		m := t.append(reply)
		t.target = m.Index
		return m

	default:
		panic(fmt.Sprintf("conversation: unhandled stream event %T", ev))
	}
}

// ResetTarget forgets the coalesce target, so the next answer appends.
func (t *Transcript) ResetTarget() {
	t.target = noTarget
}

// CoalesceTarget returns the index answer events currently replace.
func (t *Transcript) CoalesceTarget() (int, bool) {
	return t.target, t.target != noTarget
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// At returns a copy of the message at index i.
func (t *Transcript) At(i int) message.Message {
	return t.messages[i].Clone()
}

// Messages returns a deep copy of the whole transcript.
func (t *Transcript) Messages() []message.Message {
	return message.CloneAll(t.messages)
}

func (t *Transcript) append(msg message.Message) Mutation {
	msg = msg.Clone()
	t.messages = append(t.messages, msg)
	return Mutation{Op: OpAppended, Index: len(t.messages) - 1, Message: msg.Clone()}
}
