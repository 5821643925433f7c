package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client), mr
}

func TestLimiterAllowsWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		decision, err := limiter.Allow(ctx, "register:options", "198.51.100.7", 10, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !decision.Allowed {
			t.Fatalf("attempt %d denied within budget", i+1)
		}
		if decision.Remaining != 10-(i+1) {
			t.Fatalf("attempt %d: remaining = %d, want %d", i+1, decision.Remaining, 10-(i+1))
		}
	}

	decision, err := limiter.Allow(ctx, "register:options", "198.51.100.7", 10, time.Minute)
	if err != nil {
		t.Fatalf("allow over budget: %v", err)
	}
	if decision.Allowed {
		t.Fatal("11th attempt allowed")
	}
	if decision.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", decision.Remaining)
	}
	if !decision.ResetAt.After(time.Now()) {
		t.Fatalf("resetAt not in the future: %v", decision.ResetAt)
	}
}

func TestLimiterWindowElapse(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "auth:verify", "alice", 2, time.Minute); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	decision, err := limiter.Allow(ctx, "auth:verify", "alice", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial before window elapsed")
	}

	mr.FastForward(61 * time.Second)

	decision, err = limiter.Allow(ctx, "auth:verify", "alice", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected fresh window after elapse")
	}
	if decision.Remaining != 1 {
		t.Fatalf("remaining = %d, want 1", decision.Remaining)
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "auth:options", "alice", 1, time.Minute); err != nil {
		t.Fatalf("allow: %v", err)
	}
	decision, err := limiter.Allow(ctx, "auth:options", "alice", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatal("alice over budget but allowed")
	}

	decision, err = limiter.Allow(ctx, "auth:options", "bob", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("bob denied by alice's counter")
	}

	decision, err = limiter.Allow(ctx, "register:options", "alice", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("operation scopes shared a counter")
	}
}

func TestLimiterPeekAndReset(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	count, err := limiter.Peek(ctx, "auth:verify", "alice")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if count != 0 {
		t.Fatalf("peek on missing key = %d, want 0", count)
	}

	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "auth:verify", "alice", 10, time.Minute); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	count, err = limiter.Peek(ctx, "auth:verify", "alice")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if count != 3 {
		t.Fatalf("peek = %d, want 3", count)
	}

	if err := limiter.Reset(ctx, "auth:verify", "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	count, err = limiter.Peek(ctx, "auth:verify", "alice")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if count != 0 {
		t.Fatalf("peek after reset = %d, want 0", count)
	}
}

func TestLimiterUnavailableBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := New(client)
	mr.Close()

	if _, err := limiter.Allow(context.Background(), "auth:verify", "alice", 10, time.Minute); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
