// ABOUTME: Tests for the activity classifier's keyword precedence
// ABOUTME: Calendar branch must win over the tool branch

package activity

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Category
	}{
		{"searching the calendar via tool", CategorySearchingEvent},
		{"Searching Calendar…", CategorySearchingEvent},
		{"Finding free slots in your calendar", CategorySearchingEvent},
		{"Creating calendar entry", CategoryCreatingEvent},
		{"Scheduling a meeting", CategoryCalendar},
		{"calendar: schedule standup", CategoryCreatingEvent},
		{"Updating calendar event", CategoryUpdatingEvent},
		{"MODIFYING CALENDAR", CategoryUpdatingEvent},
		{"creating and updating calendar", CategoryCreatingEvent},
		{"Opening calendar", CategoryCalendar},
		{"Using Skill: list_events", CategoryExecutingSkill},
		{"tool call", CategoryExecutingSkill},
		{"searching the web with a tool", CategoryExecutingSkill},
		{"Thinking...", CategoryThinking},
		{"", CategoryThinking},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d := Classify(tt.text)
			assert.True(t, d.Active)
			assert.Equal(t, tt.want, d.Category)
			assert.NotEmpty(t, d.Label)
			assert.NotEmpty(t, d.Icon)
		})
	}
}

func TestClassify_IsStateless(t *testing.T) {
	first := Classify("Creating calendar entry")
	_ = Classify("tool call")
	again := Classify("Creating calendar entry")
	assert.Equal(t, first, again)
}

func TestDefaultAndIdle(t *testing.T) {
	d := Default()
	assert.True(t, d.Active)
	assert.Equal(t, CategoryThinking, d.Category)

	idle := Idle()
	assert.False(t, idle.Active)
	assert.Empty(t, idle.Render())
}

func TestRender(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	assert.Equal(t, "⚙ Executing skill", Classify("tool").Render())
}

func TestCategoryIDs(t *testing.T) {
	assert.Equal(t, Category("creating-event"), CategoryCreatingEvent)
	assert.Equal(t, Category("updating-event"), CategoryUpdatingEvent)
	assert.Equal(t, Category("searching-event"), CategorySearchingEvent)
	assert.Equal(t, Category("generic-calendar-activity"), CategoryCalendar)
	assert.Equal(t, Category("executing-skill"), CategoryExecutingSkill)
	assert.Equal(t, Category("generic-thinking"), CategoryThinking)
}
