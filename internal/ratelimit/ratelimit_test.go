package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWait_Budget(t *testing.T) {
	rl := NewAIRateLimiter(0, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := rl.Wait(ctx); !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("got %v, want ErrBudgetExhausted", err)
	}
	if rl.Remaining() != 0 || rl.Used() != 2 {
		t.Errorf("remaining=%d used=%d", rl.Remaining(), rl.Used())
	}
}

func TestWait_Unlimited(t *testing.T) {
	rl := NewAIRateLimiter(0, 0)
	for i := 0; i < 50; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if rl.Remaining() != -1 {
		t.Errorf("remaining = %d, want -1", rl.Remaining())
	}
}

func TestWait_PacesPerMinute(t *testing.T) {
	// 60 rpm = one request per second; the second call has to wait.
	rl := NewAIRateLimiter(60, 0)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatal("second request should not fit in 50ms")
	}
	if rl.Used() != 1 {
		t.Errorf("cancelled wait still counted: used=%d", rl.Used())
	}
}

func TestStats(t *testing.T) {
	rl := NewAIRateLimiter(0, 5)
	rl.Wait(context.Background())
	rl.RecordCacheHit()
	stats := rl.GetStats()
	if stats["requests_used"] != 1 || stats["cache_hits"] != 1 {
		t.Errorf("stats = %v", stats)
	}
	if rate := rl.GetCacheHitRate(); rate != 50 {
		t.Errorf("hit rate = %v", rate)
	}
}
