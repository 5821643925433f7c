package challenge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix    = "pkch"
	usedTokenKeyPrefix = "pkut"
)

// ErrUnavailable indicates the challenge backend is unreachable.
var ErrUnavailable = errors.New("challenge backend unavailable")

// Record is the persisted server-held challenge shape.
type Record struct {
	SubjectID string `json:"subjectId"`
	Challenge string `json:"challenge"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
}

// Store keeps one outstanding challenge per (operation, subject) in Redis.
// Saving again for the same pair supersedes the previous challenge.
type Store struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewStore creates a server-held challenge store backed by the given client.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{redis: client, now: time.Now}
}

func (s *Store) key(operation, subjectID string) string {
	return recordKeyPrefix + ":" + operation + ":" + subjectID
}

// Save persists challengeValue for (operation, subjectID) with the given TTL,
// replacing any outstanding challenge for the pair.
func (s *Store) Save(ctx context.Context, operation, subjectID, challengeValue string, ttl time.Duration) error {
	encoded, err := json.Marshal(Record{
		SubjectID: subjectID,
		Challenge: challengeValue,
		CreatedAt: s.now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(operation, subjectID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume looks up the outstanding challenge for (operation, subjectID),
// deletes it, and validates the presented value and TTL. The record is gone
// after the first call whether or not validation succeeds.
func (s *Store) Consume(ctx context.Context, operation, subjectID, challengeValue string, ttl time.Duration) error {
	key := s.key(operation, subjectID)

	data, err := s.redis.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return ErrTokenInvalid
	}
	if record.SubjectID != subjectID {
		return ErrSubjectMismatch
	}
	if s.now().UnixMilli()-record.CreatedAt > ttl.Milliseconds() {
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(record.Challenge), []byte(challengeValue)) != 1 {
		return ErrChallengeMismatch
	}

	return nil
}

// MarkTokenUsed records the consumption of a stateless token. It returns
// false when the token was already marked, which callers treat as a replay.
// The marker expires together with the challenge itself.
func (s *Store) MarkTokenUsed(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	first, err := s.redis.SetNX(ctx, usedTokenKeyPrefix+":"+TokenDigest(token), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return first, nil
}
