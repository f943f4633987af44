// Package conversation holds the transcript and folds stream events into it.
//
// # Reconciliation Rules
//
//   - status, log, error: no transcript change
//   - history_append: append the carried message verbatim
//   - answer: replace the coalesce target if one is set, otherwise append a
//     new assistant message and make it the target
//
// The coalesce target is explicit state rather than "whatever is last".
// It is set only by answer and cleared by history_append, by AppendUser and
// by ResetTarget. Because every append clears it, a set target is always
// the final message.
//
// # Usage
//
//	tr := conversation.New(history)
//	tr.AppendUser(msg)
//	for ev := range events {
//	    m := tr.Apply(ev)
//	    if m.Op != conversation.OpNone {
//	        // persist or redraw m.Message at m.Index
//	    }
//	}
package conversation
