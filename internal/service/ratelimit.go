package service

import (
	"sync"
	"time"

	"github.com/calebwren/rapport/internal/config"
)

// RateLimiter enforces per-service request budgets over a fixed window.
// Source lookups for different jobs share one limiter instance, so all
// checks run as a single check-and-record step under the mutex.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]config.RateLimitConfig
	calls  map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter creates a limiter with the given per-service budgets.
func NewRateLimiter(limits map[string]config.RateLimitConfig) *RateLimiter {
	l := make(map[string]config.RateLimitConfig, len(limits))
	for k, v := range limits {
		l[k] = v
	}
	return &RateLimiter{
		limits: l,
		calls:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records one call against the service budget if capacity remains.
// Services without a configured budget fail open: they are always allowed,
// so a denied result always means an explicit budget was hit.
func (rl *RateLimiter) Allow(service string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[service]
	if !ok || limit.Limit <= 0 {
		return true
	}

	kept := rl.purge(service, limit.Window)
	if len(kept) >= limit.Limit {
		return false
	}
	rl.calls[service] = append(kept, rl.now())
	return true
}

// Remaining reports how many calls the service budget still admits.
// Unlimited services report -1.
func (rl *RateLimiter) Remaining(service string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[service]
	if !ok || limit.Limit <= 0 {
		return -1
	}

	kept := rl.purge(service, limit.Window)
	rl.calls[service] = kept
	if n := limit.Limit - len(kept); n > 0 {
		return n
	}
	return 0
}

// Reset clears the recorded calls for one service.
func (rl *RateLimiter) Reset(service string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.calls, service)
}

// Stats returns the current in-window call count per service.
func (rl *RateLimiter) Stats() map[string]int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := make(map[string]int, len(rl.calls))
	for service := range rl.calls {
		window := rl.limits[service].Window
		kept := rl.purge(service, window)
		rl.calls[service] = kept
		if len(kept) > 0 {
			stats[service] = len(kept)
		}
	}
	return stats
}

// purge drops timestamps that fell out of the window. A record exactly one
// window old no longer counts. Caller must hold the mutex.
func (rl *RateLimiter) purge(service string, window time.Duration) []time.Time {
	now := rl.now()
	kept := rl.calls[service][:0]
	for _, ts := range rl.calls[service] {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	return kept
}
