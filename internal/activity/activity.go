// ABOUTME: Pure keyword classifier mapping status/log text to an activity descriptor
// ABOUTME: Calendar keywords take precedence over tool keywords; thinking is the fallback

package activity

import (
	"strings"

	"github.com/fatih/color"
)

// Category identifies what the agent is doing.
type Category string

// Categories
const (
	CategoryCreatingEvent  Category = "creating-event"
	CategoryUpdatingEvent  Category = "updating-event"
	CategorySearchingEvent Category = "searching-event"
	CategoryCalendar       Category = "generic-calendar-activity"
	CategoryExecutingSkill Category = "executing-skill"
	CategoryThinking       Category = "generic-thinking"
)

// Descriptor is the derived, never persisted view of the current activity.
type Descriptor struct {
	Active   bool
	Category Category
	Label    string
	Icon     string
	Color    color.Attribute
}

// style is the fixed presentation of one category.
type style struct {
	label string
	icon  string
	color color.Attribute
}

var styles = map[Category]style{
	CategoryCreatingEvent:  {"Creating event", "✚", color.FgGreen},
	CategoryUpdatingEvent:  {"Updating event", "✎", color.FgYellow},
	CategorySearchingEvent: {"Searching calendar", "⌕", color.FgCyan},
	CategoryCalendar:       {"Working on calendar", "▦", color.FgBlue},
	CategoryExecutingSkill: {"Executing skill", "⚙", color.FgMagenta},
	CategoryThinking:       {"Thinking", "…", color.FgHiBlack},
}

var (
	calendarKeywords = []string{"calendar", "scheduling"}
	createKeywords   = []string{"creating", "schedule"}
	updateKeywords   = []string{"updating", "modifying"}
	searchKeywords   = []string{"searching", "finding"}
	toolKeywords     = []string{"skill", "tool"}
)

// Classify maps text to an active descriptor.
func Classify(text string) Descriptor {
	return active(categorize(strings.ToLower(text)))
}

// Default is the descriptor shown when an exchange starts.
func Default() Descriptor {
	return active(CategoryThinking)
}

// Idle is the inactive descriptor used between exchanges.
func Idle() Descriptor {
	return Descriptor{}
}

func categorize(lower string) Category {
	if containsAny(lower, calendarKeywords) {
		switch {
		case containsAny(lower, createKeywords):
			return CategoryCreatingEvent
		case containsAny(lower, updateKeywords):
			return CategoryUpdatingEvent
		case containsAny(lower, searchKeywords):
			return CategorySearchingEvent
		default:
			return CategoryCalendar
		}
	}
	if containsAny(lower, toolKeywords) {
		return CategoryExecutingSkill
	}
	return CategoryThinking
}

func active(c Category) Descriptor {
	s := styles[c]
	return Descriptor{
		Active:   true,
		Category: c,
		Label:    s.label,
		Icon:     s.icon,
		Color:    s.color,
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Render returns "icon label" colorized for a terminal, or "" when inactive.
func (d Descriptor) Render() string {
	if !d.Active {
		return ""
	}
	return color.New(d.Color).Sprint(d.Icon + " " + d.Label)
}
