// ABOUTME: Append-only diagnostics entries recorded during an exchange
// ABOUTME: Entries are reset when a new exchange starts and never mutated

package session

import (
	"encoding/json"
	"time"
)

// EntryKind classifies a diagnostics entry.
type EntryKind string

// Entry kinds
const (
	EntryStatus EntryKind = "status"
	EntryLog    EntryKind = "log"
	EntryError  EntryKind = "error"
	EntryParse  EntryKind = "parse"
)

// LogEntry is one diagnostics line.
type LogEntry struct {
	ID        string
	Kind      EntryKind
	Text      string
	Data      json.RawMessage
	Timestamp time.Time
}

func cloneEntries(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].Data != nil {
			out[i].Data = append(json.RawMessage(nil), out[i].Data...)
		}
	}
	return out
}
