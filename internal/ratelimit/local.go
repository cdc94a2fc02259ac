package ratelimit

import (
	"context"
	"sync/atomic"
	"time"
)

// Local is a sliding-log limiter for a single process: at most limit sends in any rolling period.
// The log is an immutable snapshot swapped with compare-and-swap.
type Local struct {
	limit  int
	period time.Duration

	now   func() time.Time
	epoch time.Time

	log atomic.Pointer[sendLog]
}

type sendLog struct {
	// offsets from epoch in nanoseconds, ascending
	stamps []int64
}

func NewLocal(limit int, period time.Duration) *Local {
	return newLocal(limit, period, time.Now)
}

func newLocal(limit int, period time.Duration, now func() time.Time) *Local {
	g := &Local{
		limit:  limit,
		period: period,
		now:    now,
		epoch:  now(),
	}
	g.log.Store(&sendLog{})
	return g
}

func (g *Local) Wait(ctx context.Context) error {
	if g.limit <= 0 {
		return ctx.Err()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, ok := g.reserve()
		if ok {
			return nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve records a send at the current instant if the rolling period has room,
// otherwise it returns how long until the oldest send leaves the period.
func (g *Local) reserve() (time.Duration, bool) {
	for {
		cur := g.log.Load()
		now := int64(g.now().Sub(g.epoch))
		cutoff := now - int64(g.period)

		i := 0
		for i < len(cur.stamps) && cur.stamps[i] <= cutoff {
			i++
		}
		live := cur.stamps[i:]
		if len(live) >= g.limit {
			return time.Duration(live[0] - cutoff), false
		}

		next := &sendLog{stamps: make([]int64, len(live), len(live)+1)}
		copy(next.stamps, live)
		next.stamps = append(next.stamps, now)

		if g.log.CompareAndSwap(cur, next) {
			return 0, true
		}
	}
}
