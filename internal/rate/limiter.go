package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision reports the outcome of a single admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces fixed-window attempt budgets per (operation, caller)
// key using Redis counters.
type Limiter struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{
		redis: redisClient,
		now:   time.Now,
	}
}

func windowKey(operation, caller string) string {
	return "pkrl:" + operation + ":" + caller
}

// Allow increments the window counter for (operation, caller) and reports
// whether the pre-increment count was below maxAttempts. The counter key
// expires with the window, so an elapsed window starts fresh at count 1.
func (l *Limiter) Allow(ctx context.Context, operation, caller string, maxAttempts int, window time.Duration) (Decision, error) {
	key := windowKey(operation, caller)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	resetAt := l.now().Add(window)
	if count > 1 {
		ttl, err := l.redis.PTTL(ctx, key).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ttl > 0 {
			resetAt = l.now().Add(ttl)
		}
	}

	remaining := maxAttempts - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(maxAttempts),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Peek returns the current counter for (operation, caller) without
// incrementing it. Missing keys return zero.
func (l *Limiter) Peek(ctx context.Context, operation, caller string) (int, error) {
	count, err := l.redis.Get(ctx, windowKey(operation, caller)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the window counter for (operation, caller).
func (l *Limiter) Reset(ctx context.Context, operation, caller string) error {
	if err := l.redis.Del(ctx, windowKey(operation, caller)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
