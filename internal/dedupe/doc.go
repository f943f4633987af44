// Package dedupe provides a TTL cache of recently seen keys.
//
// The session controller keys each structural message it persists (tool-call
// requests by their call IDs, tool results by tool_call_id). If the backend
// replays the same history_append within the TTL, the second save is skipped.
// A failed save calls Forget so a later replay can try again.
package dedupe
