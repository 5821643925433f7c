package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const grantKeyPrefix = "pkhg"

var (
	// ErrInvalidGrant indicates the grant failed signature or claim checks.
	ErrInvalidGrant = errors.New("invalid handoff grant")
	// ErrGrantConsumed indicates the grant was already redeemed or expired.
	ErrGrantConsumed = errors.New("handoff grant consumed")
	// ErrUnavailable indicates the grant backend is unreachable.
	ErrUnavailable = errors.New("session backend unavailable")
)

// Config defines a public type used by goPasskey APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// Grant is a one-time exchange credential handed to the client after a
// verified ceremony.
type Grant struct {
	Secret    string
	ExpiresIn time.Duration
}

// Manager defines a public type used by goPasskey APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
	redis  redis.UniversalClient
	now    func() time.Time
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config, redisClient redis.UniversalClient) (*Manager, error) {
	if len(cfg.SigningKey) < 16 {
		return nil, errors.New("signing key must be at least 16 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}

	return &Manager{
		config: cfg,
		redis:  redisClient,
		now:    time.Now,
	}, nil
}

func grantKey(jti string) string {
	return grantKeyPrefix + ":" + jti
}

// Issue mints a grant for the user handle. The grant's jti is registered in
// Redis with the grant TTL; redemption consumes the registration, so each
// grant exchanges at most once.
//
// Issue may return an error when input validation, dependency calls, or security checks fail.
// Issue does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Issue(ctx context.Context, userHandle string) (*Grant, error) {
	now := m.now()
	jti := uuid.NewString()

	claims := jwt.RegisteredClaims{
		Subject:   userHandle,
		ID:        jti,
		ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    m.config.Issuer,
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	secret, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.SigningKey)
	if err != nil {
		return nil, err
	}

	if err := m.redis.Set(ctx, grantKey(jti), userHandle, m.config.TTL).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Grant{Secret: secret, ExpiresIn: m.config.TTL}, nil
}

// Redeem exchanges a grant for the user handle it was issued to. The second
// redemption of the same grant fails with [ErrGrantConsumed].
//
// Redeem may return an error when input validation, dependency calls, or security checks fail.
// Redeem does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Redeem(ctx context.Context, secret string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(secret, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(m.config.SigningKey), nil
	})
	if err != nil {
		return "", ErrInvalidGrant
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return "", ErrInvalidGrant
	}

	userHandle, err := m.redis.GetDel(ctx, grantKey(claims.ID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrGrantConsumed
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if userHandle != claims.Subject {
		return "", ErrInvalidGrant
	}

	return userHandle, nil
}
