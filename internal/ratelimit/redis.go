package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingLog keeps one sorted-set member per send, scored by send time in milliseconds.
// Returns 0 when the send is recorded, otherwise the milliseconds to wait.
var slidingLog = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return 0
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
	wait = 1
end
return wait
`)

// Redis is a sliding-log limiter shared by every worker process that talks to the same provider account.
type Redis struct {
	client *redis.Client
	key    string
	limit  int
	period time.Duration
	now    func() time.Time
}

func NewRedis(client *redis.Client, account string, limit int, period time.Duration) *Redis {
	return &Redis{
		client: client,
		key:    fmt.Sprintf("ratelimit:%s", account),
		limit:  limit,
		period: period,
		now:    time.Now,
	}
}

func (g *Redis) Wait(ctx context.Context) error {
	if g.limit <= 0 {
		return ctx.Err()
	}
	for {
		wait, err := g.reserve(ctx)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (g *Redis) reserve(ctx context.Context) (time.Duration, error) {
	waitMs, err := slidingLog.Run(ctx, g.client, []string{g.key},
		g.now().UnixMilli(),
		g.period.Milliseconds(),
		g.limit,
		uuid.NewString(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("rate gate: %w", err)
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}
