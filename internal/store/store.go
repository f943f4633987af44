// ABOUTME: Store interface and data types for chat session persistence
// ABOUTME: Sessions own an ordered list of messages

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/mahakaal/internal/message"
)

// ErrNotFound is returned when a requested session does not exist
var ErrNotFound = errors.New("not found")

// defaultTitleLayout formats the title of sessions created without one.
const defaultTitleLayout = "2006-01-02 15:04"

// Session is a stored conversation.
type Session struct {
	ID           int64
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}

// Store is the persistence interface used by the backend handlers.
type Store interface {
	CreateSession(ctx context.Context, title string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	GetSession(ctx context.Context, id int64) (*Session, error)
	GetSessionMessages(ctx context.Context, id int64) ([]message.Message, error)
	SaveMessage(ctx context.Context, sessionID int64, msg message.Message) error
	UpdateSessionTitle(ctx context.Context, id int64, title string) (*Session, error)
	DeleteSession(ctx context.Context, id int64) error
	Close() error
}

// DefaultTitle is the title given to a session created at t without one.
func DefaultTitle(t time.Time) string {
	return "Chat " + t.Format(defaultTitleLayout)
}
