// Package stream turns a chunked NDJSON response body into typed agent events.
//
// # Framing
//
// The backend writes one JSON object per line. Transport chunks do not line
// up with lines: a chunk may end in the middle of a record, in the middle of
// a multi-byte character, or between the two bytes of a CRLF. Decoder keeps
// the unterminated tail between Feed calls, so the emitted line sequence is
// the same for every partition of a given byte stream. A tail still pending
// when the stream ends is an incomplete record and is discarded.
//
// # Events
//
// Each complete line parses into exactly one of five event kinds, selected
// by the "type" field:
//
//	{"type":"status","content":"Thinking..."}
//	{"type":"log","content":"Using Skill: list_events","data":{"date":"2025-01-02"}}
//	{"type":"history_append","content":"Tool result","data":{"role":"tool",...}}
//	{"type":"answer","content":"You have no events tomorrow."}
//	{"type":"error","content":"upstream model unavailable"}
//
// answer carries the full reply accumulated so far, not a delta.
//
// Lines that are not JSON, or carry an unknown type, produce a *ParseError.
// Parse errors are local to the line; callers record them and keep reading.
package stream
