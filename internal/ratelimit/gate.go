// Package ratelimit throttles sends against one provider account. Every dispatch unit of every
// batch that targets the same account shares one Gate.
package ratelimit

import (
	"context"
	"time"
)

// Gate blocks until one more send is allowed, or ctx is done.
type Gate interface {
	Wait(ctx context.Context) error
}

// Unlimited never blocks.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
