// ABOUTME: Tests for the persistence dedupe cache.
// ABOUTME: Uses an injected clock so expiry is checked without sleeping.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(t *testing.T, ttl time.Duration, size int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)}
	c := New(ttl, size, WithClock(clock.Now))
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_CheckUnknown(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)
	assert.False(t, c.Check("tool:1"))
}

func TestCache_MarkThenCheck(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)
	c.Mark("tool:1")
	assert.True(t, c.Check("tool:1"))
	assert.False(t, c.Check("tool:2"))
}

func TestCache_Expiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)
	c.Mark("tool:1")

	clock.Advance(59 * time.Second)
	assert.True(t, c.Check("tool:1"))

	clock.Advance(time.Second)
	assert.False(t, c.Check("tool:1"))
}

func TestCache_MarkRefreshesExpiry(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)
	c.Mark("tool:1")

	clock.Advance(45 * time.Second)
	c.Mark("tool:1")
	clock.Advance(45 * time.Second)

	assert.True(t, c.Check("tool:1"))
}

func TestCache_CheckAndMark(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)

	assert.False(t, c.CheckAndMark("calls:1"), "first sighting is new")
	assert.True(t, c.CheckAndMark("calls:1"), "second sighting is a duplicate")

	clock.Advance(2 * time.Minute)
	assert.False(t, c.CheckAndMark("calls:1"), "expired key counts as new")
}

func TestCache_Forget(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 10)
	c.Mark("tool:1")
	c.Forget("tool:1")
	assert.False(t, c.Check("tool:1"))
	assert.Zero(t, c.Len())

	// Forgetting an unknown key is a no-op
	c.Forget("missing")
}

func TestCache_EvictsLeastRecentlyMarked(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 3)
	c.Mark("a")
	c.Mark("b")
	c.Mark("c")
	c.Mark("a") // refresh moves a to the back
	c.Mark("d")

	assert.False(t, c.Check("b"), "b is least recently marked")
	assert.True(t, c.Check("a"))
	assert.True(t, c.Check("c"))
	assert.True(t, c.Check("d"))
	assert.Equal(t, 3, c.Len())
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache(t, time.Minute, 10)
	c.Mark("old-1")
	c.Mark("old-2")
	clock.Advance(30 * time.Second)
	c.Mark("fresh")
	clock.Advance(31 * time.Second)

	c.Sweep()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Check("fresh"))
}

func TestCache_MinimumSize(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 0)
	c.Mark("a")
	c.Mark("b")
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Check("b"))
}

func TestCache_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range 100 {
				key := fmt.Sprintf("tool:%d-%d", id, j%10)
				c.CheckAndMark(key)
				c.Check(key)
			}
		}(i)
	}
	wg.Wait()

	c.Mark("final")
	assert.True(t, c.Check("final"))
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
