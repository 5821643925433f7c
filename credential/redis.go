package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	subjectKeyPrefix = "pkcs"
	indexKeyPrefix   = "pkci"
)

// RedisBackend persists credential sets in Redis. Subject documents live
// under pkcs:<subjectID>, the global credential index under pkci:<credID>.
// Read-modify-write cycles run inside WATCH transactions, so concurrent
// writers across processes serialize per subject key.
type RedisBackend struct {
	redis redis.UniversalClient
}

// NewRedisBackend creates a [RedisBackend] on the given client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{redis: client}
}

func subjectKey(subjectID string) string {
	return subjectKeyPrefix + ":" + subjectID
}

func indexKey(credentialID string) string {
	return indexKeyPrefix + ":" + credentialID
}

// LoadSubject returns the subject's credential set. Absent or unparsable
// documents decode to an empty set.
func (b *RedisBackend) LoadSubject(ctx context.Context, subjectID string) ([]Record, error) {
	data, err := b.redis.Get(ctx, subjectKey(subjectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeRecords(data), nil
}

// UpdateSubject applies mutate under WATCH with a bounded retry budget.
// A concurrent writer invalidates the transaction and the cycle restarts
// from a fresh read.
func (b *RedisBackend) UpdateSubject(ctx context.Context, subjectID string, mutate func([]Record) ([]Record, error)) error {
	const maxRetries = 4
	key := subjectKey(subjectID)

	for i := 0; i < maxRetries; i++ {
		err := b.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			records, err := mutate(decodeRecords(data))
			if err != nil {
				return err
			}

			if len(records) == 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeRecords(records)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrCounterRegression) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: transaction retries exhausted", ErrUnavailable)
}

// SubjectOf resolves the owning subject via the global index.
func (b *RedisBackend) SubjectOf(ctx context.Context, credentialID string) (string, error) {
	subjectID, err := b.redis.Get(ctx, indexKey(credentialID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return subjectID, nil
}

// BindCredential claims the credential ID with SETNX; the first writer wins.
func (b *RedisBackend) BindCredential(ctx context.Context, credentialID, subjectID string) error {
	bound, err := b.redis.SetNX(ctx, indexKey(credentialID), subjectID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !bound {
		return ErrDuplicate
	}
	return nil
}

// UnbindCredential releases the credential ID from the global index.
func (b *RedisBackend) UnbindCredential(ctx context.Context, credentialID string) error {
	if err := b.redis.Del(ctx, indexKey(credentialID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
