// ABOUTME: Tests for the update fan-out used by the session controller
// ABOUTME: Covers delivery, dropping for slow subscribers and unsubscribe on cancel

package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_MultipleSubscribersReceiveSameUpdate(t *testing.T) {
	b := newBroadcaster(slog.Default())
	defer b.close()

	ctx := t.Context()
	ch1 := b.subscribe(ctx)
	ch2 := b.subscribe(ctx)

	b.publish(Update{Kind: UpdateState, ExchangeID: "ex-1", State: StateSending})

	for i, ch := range []<-chan Update{ch1, ch2} {
		select {
		case u := <-ch:
			assert.Equal(t, "ex-1", u.ExchangeID, "subscriber %d", i)
			assert.Equal(t, StateSending, u.State)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := newBroadcaster(slog.Default())
	defer b.close()

	ch := b.subscribe(t.Context())

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize+50; i++ {
			b.publish(Update{Kind: UpdateLog})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := newBroadcaster(slog.Default())
	defer b.close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.Empty(t, b.subscribers)
}

func TestBroadcaster_CloseClosesChannels(t *testing.T) {
	b := newBroadcaster(slog.Default())
	ch := b.subscribe(t.Context())

	b.close()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after close is a no-op.
	b.publish(Update{Kind: UpdateState})
}
