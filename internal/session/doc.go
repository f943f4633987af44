// Package session drives one chat exchange at a time against the agent backend.
//
// # Lifecycle
//
//	Idle -> Sending -> Streaming -> Completed | Failed -> Idle
//
// Send appends the user message, clears the diagnostics log, shows the
// default activity and posts the transcript. Each line of the NDJSON
// response is parsed and dispatched in arrival order:
//
//   - status, log: diagnostics entry and a fresh activity classification
//   - error: diagnostics entry
//   - history_append, answer: transcript reconciliation
//
// Lines that fail to parse add a "parse" diagnostics entry and are skipped.
// A transport error ends the exchange as Failed; whatever was reconciled
// stays in the transcript.
//
// # Superseded Exchanges
//
// Calling Send while an exchange is still running supersedes it: its
// context is cancelled, which aborts the HTTP stream, and every event it
// reads afterwards is dropped before reaching the transcript. The
// superseded exchange finishes with OutcomeSuperseded and leaves the
// activity and diagnostics of the new exchange alone.
//
// # Persistence
//
// With a Persister configured and a session ID set, each new user message,
// each history_append message and the final coalesced answer are saved in
// their own goroutines. Failures are logged and added to diagnostics; they
// never change the transcript or the exchange state. Flush waits for
// outstanding saves.
//
// # Observing
//
// Subscribe returns a channel of Updates (state changes, transcript
// mutations, activity changes, diagnostics entries) in the order they were
// applied. Slow subscribers drop updates rather than block the exchange.
package session
