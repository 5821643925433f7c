package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the escalating failure lockout.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration // 0 = manual reset only
}

// Lockout tracks consecutive failed ceremony verifications per subject and
// reports when the configured threshold has been reached.
type Lockout struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockout creates a new lockout tracker.
func NewLockout(redisClient redis.UniversalClient, cfg LockoutConfig) *Lockout {
	return &Lockout{redis: redisClient, config: cfg}
}

func (l *Lockout) key(subjectID string) string {
	return "pklo:" + subjectID
}

// RecordFailure increments the failure tally for a subject.
// Returns true if the threshold has been reached (caller should deny admission).
func (l *Lockout) RecordFailure(ctx context.Context, subjectID string) (bool, error) {
	if !l.config.Enabled || subjectID == "" {
		return false, nil
	}

	count, err := l.redis.Incr(ctx, l.key(subjectID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if l.config.Duration > 0 {
		// Rolling window: every failure pushes the reset horizon out, so the
		// tally only clears after a quiet period or an explicit Reset.
		if err := l.redis.Expire(ctx, l.key(subjectID), l.config.Duration).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count >= int64(l.config.Threshold), nil
}

// Reset clears the failure tally for a subject (e.g., after a successful
// ceremony or manual unlock).
func (l *Lockout) Reset(ctx context.Context, subjectID string) error {
	if !l.config.Enabled || subjectID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Locked reports whether the subject's failure tally has reached the threshold.
func (l *Lockout) Locked(ctx context.Context, subjectID string) (bool, error) {
	count, err := l.FailureCount(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return l.config.Enabled && count >= l.config.Threshold, nil
}

// FailureCount returns the current failure tally for a subject.
func (l *Lockout) FailureCount(ctx context.Context, subjectID string) (int, error) {
	if !l.config.Enabled || subjectID == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.key(subjectID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}
