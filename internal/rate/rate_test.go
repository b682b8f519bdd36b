package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "ip1|/v1/signin/otp/send")
		if err != nil {
			t.Fatalf("Allow err: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d blocked inside limit", i+1)
		}
	}

	res, err := l.Allow(ctx, "ip1|/v1/signin/otp/send")
	if err != nil {
		t.Fatalf("Allow err: %v", err)
	}
	if res.Allowed {
		t.Fatal("4th request allowed over a limit of 3")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("retry after = %v", res.RetryAfter)
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "a"); !res.Allowed {
		t.Fatal("first hit on key a blocked")
	}
	if res, _ := l.Allow(ctx, "b"); !res.Allowed {
		t.Fatal("key b throttled by key a's hits")
	}
	if res, _ := l.Allow(ctx, "a"); res.Allowed {
		t.Fatal("second hit on key a allowed over limit 1")
	}
}
