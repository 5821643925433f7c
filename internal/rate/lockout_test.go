package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLockout(t *testing.T, cfg LockoutConfig) (*Lockout, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewLockout(client, cfg), mr
}

func TestLockoutThreshold(t *testing.T) {
	lockout, _ := newTestLockout(t, LockoutConfig{Enabled: true, Threshold: 3, Duration: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		locked, err := lockout.RecordFailure(ctx, "alice")
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if locked {
			t.Fatalf("locked after %d failures, threshold is 3", i+1)
		}
	}

	locked, err := lockout.RecordFailure(ctx, "alice")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if !locked {
		t.Fatal("threshold reached but not locked")
	}

	locked, err = lockout.Locked(ctx, "alice")
	if err != nil {
		t.Fatalf("locked check: %v", err)
	}
	if !locked {
		t.Fatal("Locked() disagrees with RecordFailure")
	}
}

func TestLockoutResetClearsTally(t *testing.T) {
	lockout, _ := newTestLockout(t, LockoutConfig{Enabled: true, Threshold: 2, Duration: 15 * time.Minute})
	ctx := context.Background()

	if _, err := lockout.RecordFailure(ctx, "alice"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := lockout.Reset(ctx, "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	count, err := lockout.FailureCount(ctx, "alice")
	if err != nil {
		t.Fatalf("failure count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after reset = %d, want 0", count)
	}
}

func TestLockoutRollingWindowExpires(t *testing.T) {
	lockout, mr := newTestLockout(t, LockoutConfig{Enabled: true, Threshold: 2, Duration: time.Minute})
	ctx := context.Background()

	if _, err := lockout.RecordFailure(ctx, "alice"); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	mr.FastForward(61 * time.Second)

	locked, err := lockout.RecordFailure(ctx, "alice")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if locked {
		t.Fatal("stale failure still counted after window elapsed")
	}
}

func TestLockoutDisabled(t *testing.T) {
	lockout, _ := newTestLockout(t, LockoutConfig{Enabled: false, Threshold: 1})
	ctx := context.Background()

	locked, err := lockout.RecordFailure(ctx, "alice")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if locked {
		t.Fatal("disabled tracker reported lock")
	}

	locked, err = lockout.Locked(ctx, "alice")
	if err != nil {
		t.Fatalf("locked check: %v", err)
	}
	if locked {
		t.Fatal("disabled tracker reported lock")
	}
}
