// ABOUTME: Tests for markdown to terminal text rendering
// ABOUTME: One case per construct the agent commonly emits

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "You have no events tomorrow.", "You have no events tomorrow."},
		{"emphasis stripped", "**Team sync** at _10am_", "Team sync at 10am"},
		{"heading", "# Tomorrow\n\nNothing planned.", "TOMORROW\n\nNothing planned."},
		{"bullets", "- Standup\n- Lunch", "• Standup\n• Lunch"},
		{"ordered", "1. First\n2. Second", "1. First\n2. Second"},
		{"nested", "- Monday\n  - Standup", "• Monday\n  • Standup"},
		{"code span kept", "Run `make test` first", "Run `make test` first"},
		{"fenced code", "```\nlist_events()\n```", "    list_events()"},
		{"link", "[Agenda](https://example.com/a)", "Agenda (https://example.com/a)"},
		{"autolink", "<https://example.com>", "https://example.com"},
		{"quote", "> moved to Friday", "> moved to Friday"},
		{"paragraphs", "One.\n\nTwo.", "One.\n\nTwo."},
		{"trailing newlines", "Done.\n\n\n", "Done."},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestPlainText_ListThenParagraph(t *testing.T) {
	got := PlainText("- a\n- b\n\nAfter.")
	assert.Equal(t, "• a\n• b\n\nAfter.", got)
}
