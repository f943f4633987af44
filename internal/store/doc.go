// Package store persists chat sessions and their messages in SQLite.
//
// # Data Models
//
//   - Session: a titled conversation with created/updated timestamps
//   - messages: message.Message values stored in insertion order, with
//     tool calls kept as a JSON column
//
// Saving a message bumps its session's updated_at, so ListSessions returns
// the most recently active conversations first. Deleting a session removes
// its messages.
//
// # Usage
//
//	s, err := store.NewSQLiteStore(path)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	sess, err := s.CreateSession(ctx, "")
//	err = s.SaveMessage(ctx, sess.ID, msg)
//	msgs, err := s.GetSessionMessages(ctx, sess.ID)
package store
