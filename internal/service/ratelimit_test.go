package service

import (
	"testing"
	"time"

	"github.com/calebwren/rapport/internal/config"
)

func newTestLimiter(limit int, window time.Duration) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(map[string]config.RateLimitConfig{
		"microblog": {Limit: limit, Window: window},
	})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_WindowBoundary(t *testing.T) {
	rl, now := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("microblog") {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	if rl.Allow("microblog") {
		t.Error("call over the limit should be denied")
	}
	if got := rl.Remaining("microblog"); got != 0 {
		t.Errorf("expected 0 remaining, got %d", got)
	}

	// A denied call must not consume budget once the window turns over.
	*now = now.Add(time.Minute)
	if !rl.Allow("microblog") {
		t.Error("call after the window elapsed should be allowed")
	}
}

func TestRateLimiter_PartialExpiry(t *testing.T) {
	rl, now := newTestLimiter(2, time.Minute)

	if !rl.Allow("microblog") {
		t.Fatal("first call should be allowed")
	}
	*now = now.Add(40 * time.Second)
	if !rl.Allow("microblog") {
		t.Fatal("second call should be allowed")
	}
	if rl.Allow("microblog") {
		t.Error("third call inside the window should be denied")
	}

	// 25s later the first record is out of the window, the second is not.
	*now = now.Add(25 * time.Second)
	if !rl.Allow("microblog") {
		t.Error("call should be allowed after the oldest record expired")
	}
	if rl.Allow("microblog") {
		t.Error("budget should be exhausted again")
	}
}

func TestRateLimiter_UnknownServiceFailsOpen(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)

	for i := 0; i < 10; i++ {
		if !rl.Allow("unconfigured_service") {
			t.Fatal("unknown service should always be allowed")
		}
	}
	if got := rl.Remaining("unconfigured_service"); got != -1 {
		t.Errorf("expected -1 remaining for unknown service, got %d", got)
	}
}

func TestRateLimiter_ResetAndStats(t *testing.T) {
	rl, _ := newTestLimiter(5, time.Minute)

	rl.Allow("microblog")
	rl.Allow("microblog")

	if got := rl.Stats()["microblog"]; got != 2 {
		t.Errorf("expected 2 recorded calls, got %d", got)
	}

	rl.Reset("microblog")
	if got := rl.Remaining("microblog"); got != 5 {
		t.Errorf("expected full budget after reset, got %d", got)
	}
}
