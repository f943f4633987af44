// ABOUTME: In-memory fan-out of controller updates to UI subscribers
// ABOUTME: Non-blocking publish; a full subscriber channel drops the update

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/mahakaal/internal/activity"
	"github.com/2389/mahakaal/internal/conversation"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 256

// UpdateKind identifies which field of an Update is set.
type UpdateKind string

// Update kinds
const (
	UpdateState      UpdateKind = "state"
	UpdateTranscript UpdateKind = "transcript"
	UpdateActivity   UpdateKind = "activity"
	UpdateLog        UpdateKind = "log"
)

// Update describes one observable change.
type Update struct {
	Kind       UpdateKind
	ExchangeID string
	State      State
	Mutation   conversation.Mutation
	Activity   activity.Descriptor
	Entry      LogEntry
}

// broadcaster delivers updates to every subscriber.
type broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Update
	logger      *slog.Logger
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{
		subscribers: make(map[string]chan Update),
		logger:      logger,
	}
}

// subscribe registers a subscriber that is removed when ctx is done.
func (b *broadcaster) subscribe(ctx context.Context) <-chan Update {
	id := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", id)

	go func() {
		<-ctx.Done()
		b.unsubscribe(id)
	}()

	return ch
}

// publish never blocks.
func (b *broadcaster) publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			b.logger.Debug("dropped update for slow subscriber", "sub_id", id, "kind", u.Kind)
		}
	}
}

func (b *broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", id)
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
