package service

import (
	"testing"
	"time"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_TripAndExpire(t *testing.T) {
	cb, now := newTestBreaker()

	cb.Trip("session:microblog", "http_429", time.Hour)

	if !cb.IsOpen("session:microblog") {
		t.Fatal("circuit should be open immediately after trip")
	}
	if reason, ok := cb.Reason("session:microblog"); !ok || reason != "http_429" {
		t.Errorf("expected reason http_429, got %q (ok=%v)", reason, ok)
	}
	if cb.IsOpen("session:websearch") {
		t.Error("other keys should stay closed")
	}

	*now = now.Add(time.Hour)
	if cb.IsOpen("session:microblog") {
		t.Fatal("circuit should close once the cool-down elapses")
	}

	// Expiry must delete the record. A fresh short trip right after expiry
	// would otherwise lose against the stale hour-long entry.
	cb.Trip("session:microblog", "captcha_challenge", time.Minute)
	if !cb.IsOpen("session:microblog") {
		t.Fatal("re-trip after expiry should open the circuit")
	}
	if reason, _ := cb.Reason("session:microblog"); reason != "captcha_challenge" {
		t.Errorf("expected fresh reason, got %q", reason)
	}
	*now = now.Add(time.Minute)
	if cb.IsOpen("session:microblog") {
		t.Error("short re-trip should expire on its own schedule")
	}
}

func TestCircuitBreaker_TripDoesNotShortenBlock(t *testing.T) {
	cb, now := newTestBreaker()

	cb.Trip("key", "captcha_challenge", time.Hour)
	cb.Trip("key", "http_429", time.Minute)

	*now = now.Add(30 * time.Minute)
	if !cb.IsOpen("key") {
		t.Error("a shorter second trip must not shorten the existing block")
	}
	if reason, _ := cb.Reason("key"); reason != "captcha_challenge" {
		t.Errorf("expected original reason to stand, got %q", reason)
	}
}

func TestCircuitBreaker_Snapshot(t *testing.T) {
	cb, now := newTestBreaker()

	cb.Trip("a", "http_429", time.Minute)
	cb.Trip("b", "http_429", time.Hour)

	*now = now.Add(10 * time.Minute)
	open := cb.Snapshot()
	if len(open) != 1 {
		t.Fatalf("expected 1 open circuit, got %d", len(open))
	}
	if _, ok := open["b"]; !ok {
		t.Error("expected key b to still be open")
	}
}
