// ABOUTME: Terminal rendering of controller updates, transcripts, sessions and diagnostics
// ABOUTME: Prints answers progressively and colors activity, tool traces and errors

package main

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/2389/mahakaal/internal/backend"
	"github.com/2389/mahakaal/internal/message"
	"github.com/2389/mahakaal/internal/render"
	"github.com/2389/mahakaal/internal/session"
)

var (
	dim    = color.New(color.Faint)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	blue   = color.New(color.FgBlue)
)

// view prints one exchange at a time to out.
type view struct {
	out io.Writer

	exchangeID string
	activity   string
	answer     string
}

func newView(out io.Writer) *view {
	return &view{out: out}
}

// begin resets per-exchange state.
func (v *view) begin(exchangeID string) {
	v.exchangeID = exchangeID
	v.activity = ""
	v.answer = ""
}

// handle prints u if it belongs to the current exchange.
func (v *view) handle(u session.Update) {
	if u.ExchangeID == "" || u.ExchangeID != v.exchangeID {
		return
	}

	switch u.Kind {
	case session.UpdateActivity:
		line := u.Activity.Render()
		if line == "" || line == v.activity {
			return
		}
		v.activity = line
		v.breakAnswer()
		fmt.Fprintln(v.out, line)

	case session.UpdateTranscript:
		v.handleMessage(u.Mutation.Message)

	case session.UpdateLog:
		switch u.Entry.Kind {
		case session.EntryError:
			v.breakAnswer()
			red.Fprintf(v.out, "[error] %s\n", u.Entry.Text)
		case session.EntryParse:
			v.breakAnswer()
			yellow.Fprintf(v.out, "[skipped] %s\n", truncate(u.Entry.Text, 100))
		}

	case session.UpdateState:
		switch u.State {
		case session.StateCompleted:
			v.finishAnswer()
		case session.StateFailed:
			v.breakAnswer()
		}
	}
}

func (v *view) handleMessage(msg message.Message) {
	switch {
	case msg.Role == message.RoleUser:
		return

	case len(msg.ToolCalls) > 0:
		v.breakAnswer()
		for _, call := range msg.ToolCalls {
			yellow.Fprintf(v.out, "[tool] %s %s\n", call.Function.Name, truncate(call.Function.Arguments, 60))
		}

	case msg.Role == message.RoleTool:
		v.breakAnswer()
		green.Fprintf(v.out, "[tool done] %s\n", truncate(msg.Text(), 60))

	default:
		v.printAnswer(msg.Text())
	}
}

// printAnswer writes the part of text not yet shown. A reply that does not
// extend what was printed is shown again in full.
func (v *view) printAnswer(text string) {
	if strings.HasPrefix(text, v.answer) {
		fmt.Fprint(v.out, text[len(v.answer):])
	} else {
		fmt.Fprint(v.out, "\n"+text)
	}
	v.answer = text
}

// finishAnswer ends the streamed answer. Answers with markdown formatting
// are shown again as rendered text.
func (v *view) finishAnswer() {
	raw := v.answer
	v.breakAnswer()

	rendered := render.PlainText(raw)
	if strings.TrimSpace(rendered) == strings.TrimSpace(raw) {
		return
	}
	dim.Fprintln(v.out, strings.Repeat("─", 8))
	fmt.Fprintln(v.out, rendered)
}

// breakAnswer ends a partially printed answer line.
func (v *view) breakAnswer() {
	if v.answer != "" && !strings.HasSuffix(v.answer, "\n") {
		fmt.Fprintln(v.out)
	}
	v.answer = ""
}

func (v *view) printTranscript(msgs []message.Message) {
	if len(msgs) == 0 {
		dim.Fprintln(v.out, "(empty conversation)")
		return
	}

	fmt.Fprintln(v.out, strings.Repeat("-", 60))
	for _, msg := range msgs {
		switch {
		case msg.Role == message.RoleUser:
			blue.Fprint(v.out, "→ ")
			fmt.Fprintln(v.out, msg.Text())
		case len(msg.ToolCalls) > 0:
			for _, call := range msg.ToolCalls {
				yellow.Fprintf(v.out, "  [tool] %s\n", call.Function.Name)
			}
		case msg.Role == message.RoleTool:
			dim.Fprintf(v.out, "  [result] %s\n", truncate(msg.Text(), 60))
		default:
			green.Fprint(v.out, "← ")
			fmt.Fprintln(v.out, render.PlainText(msg.Text()))
		}
	}
	fmt.Fprintln(v.out, strings.Repeat("-", 60))
}

func (v *view) printSessions(sessions []backend.SessionInfo, current string) {
	if len(sessions) == 0 {
		fmt.Fprintln(v.out, "No saved sessions")
		return
	}

	fmt.Fprintln(v.out, "Sessions:")
	for _, s := range sessions {
		marker := "  "
		if string(s.ID) == current {
			marker = "* "
		}
		count := ""
		if s.MessageCount != nil {
			count = fmt.Sprintf(" (%d messages)", *s.MessageCount)
		}
		fmt.Fprintf(v.out, "%s%s: %s%s", marker, s.ID, s.Title, count)
		dim.Fprintf(v.out, "  %s\n", s.UpdatedAt)
	}
}

func (v *view) printLogs(entries []session.LogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(v.out, "No diagnostics for the last exchange")
		return
	}

	for _, e := range entries {
		stamp := e.Timestamp.Format(time.TimeOnly)
		label := fmt.Sprintf("%-6s", e.Kind)
		switch e.Kind {
		case session.EntryError:
			label = red.Sprint(label)
		case session.EntryParse:
			label = yellow.Sprint(label)
		default:
			label = dim.Sprint(label)
		}
		fmt.Fprintf(v.out, "%s %s %s\n", dim.Sprint(stamp), label, e.Text)
		if len(e.Data) > 0 {
			dim.Fprintf(v.out, "       %s\n", truncate(string(e.Data), 120))
		}
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
