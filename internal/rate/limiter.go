package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter evaluates cooldowns and counters against Redis.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Cooldown claims key for window. When the key is already held it returns
// ErrRateLimited together with the remaining hold time.
func (l *Limiter) Cooldown(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	if l == nil || window <= 0 {
		return 0, nil
	}

	ok, err := l.redis.SetNX(ctx, key, "1", window).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ok {
		return 0, nil
	}

	remaining, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if remaining < 0 {
		remaining = window
	}
	return remaining, ErrRateLimited
}

// Hit increments the fixed-window counter at key and fails once the count
// exceeds max. The window starts on the first hit.
func (l *Limiter) Hit(ctx context.Context, key string, max int, window time.Duration) (time.Duration, error) {
	if l == nil || max <= 0 || window <= 0 {
		return 0, nil
	}

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count <= int64(max) {
		return 0, nil
	}

	remaining, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if remaining < 0 {
		remaining = window
	}
	return remaining, ErrRateLimited
}

// Release drops keys, e.g. an attempt counter after a successful login.
func (l *Limiter) Release(ctx context.Context, keys ...string) error {
	if l == nil || len(keys) == 0 {
		return nil
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
