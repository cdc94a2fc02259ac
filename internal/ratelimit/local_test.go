package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestLocal_ConcurrentReservationsNeverExceedLimit(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	g := newLocal(20, time.Minute, clk.Now)

	reserveAll := func() int64 {
		var granted atomic.Int64
		var wg sync.WaitGroup
		for range 50 {
			wg.Go(func() {
				if _, ok := g.reserve(); ok {
					granted.Add(1)
				}
			})
		}
		wg.Wait()
		return granted.Load()
	}

	assert.EqualValues(t, 20, reserveAll())

	clk.Advance(59 * time.Second)
	assert.EqualValues(t, 0, reserveAll(), "still inside the rolling minute")

	clk.Advance(time.Second)
	assert.EqualValues(t, 20, reserveAll())
}

func TestLocal_ReportsWaitUntilOldestExpires(t *testing.T) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	g := newLocal(2, time.Minute, clk.Now)

	_, ok := g.reserve()
	require.True(t, ok)
	clk.Advance(10 * time.Second)
	_, ok = g.reserve()
	require.True(t, ok)

	wait, ok := g.reserve()
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, wait)

	clk.Advance(50 * time.Second)
	_, ok = g.reserve()
	assert.True(t, ok)
}

func TestLocal_WaitHonoursContext(t *testing.T) {
	g := NewLocal(3, time.Hour)

	for range 3 {
		require.NoError(t, g.Wait(context.Background()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := g.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocal_WaitThrottlesConcurrentWorkers(t *testing.T) {
	g := NewLocal(10, 100*time.Millisecond)

	start := time.Now()
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			assert.NoError(t, g.Wait(context.Background()))
		})
	}
	wg.Wait()

	// 50 sends at 10 per 100ms need at least four full periods after the first burst.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestLocal_ZeroLimitIsUnlimited(t *testing.T) {
	g := NewLocal(0, time.Minute)
	for range 100 {
		require.NoError(t, g.Wait(context.Background()))
	}
}
