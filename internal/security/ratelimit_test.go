package security

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fixedLimiter(cfg RateLimitConfig, now *time.Time) *RateLimiter {
	rl := NewRateLimiter(cfg)
	rl.now = func() time.Time { return *now }
	return rl
}

func TestRateLimiter_TrailingMinute(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	rl := fixedLimiter(RateLimitConfig{RejectionsPerMin: 2}, &now)

	steps := []struct {
		advance time.Duration
		allowed bool
	}{
		{0, true},
		{10 * time.Second, true},
		{10 * time.Second, false}, // two in the last 20s
		{39 * time.Second, false}, // first is 59s old
		{time.Second, true},       // first has aged out
		{0, false},
		{10 * time.Second, true}, // second has aged out
		{0, false},
	}
	for i, s := range steps {
		now = now.Add(s.advance)
		err := rl.Allow(KindRejection)
		if got := err == nil; got != s.allowed {
			t.Fatalf("step %d: Allow() = %v, want allowed=%v", i, err, s.allowed)
		}
		if err != nil && !errors.Is(err, ErrRateLimited) {
			t.Fatalf("step %d: error = %v, want ErrRateLimited", i, err)
		}
	}
}

func TestRateLimiter_KindsAreSeparate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rl := fixedLimiter(RateLimitConfig{MessagesPerMin: 1, RejectionsPerMin: 1}, &now)
	if rl.Allow(KindMessage) != nil || rl.Allow(KindRejection) != nil {
		t.Fatal("first event of each kind refused")
	}
	if rl.Allow(KindMessage) == nil {
		t.Error("second message allowed")
	}
	for range 100 {
		if err := rl.Allow("webhook"); err != nil {
			t.Fatalf("unlimited kind refused: %v", err)
		}
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rl := fixedLimiter(RateLimitConfig{MessagesPerMin: -1}, &now)

	allowed := 0
	for rl.Allow(KindMessage) == nil {
		allowed++
	}
	if allowed != 30 {
		t.Errorf("messages allowed = %d, want 30", allowed)
	}
	allowed = 0
	for rl.Allow(KindRejection) == nil {
		allowed++
	}
	if allowed != 5 {
		t.Errorf("rejections allowed = %d, want 5", allowed)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 25})
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 80 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(KindMessage) == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if n := allowed.Load(); n != 25 {
		t.Errorf("allowed = %d, want 25", n)
	}
}
