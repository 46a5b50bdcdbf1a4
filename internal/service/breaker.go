package service

import (
	"sync"
	"time"
)

// blockRecord holds one open-circuit entry.
type blockRecord struct {
	until  time.Time
	reason string
}

// CircuitBreaker blocks calls against a key for a cool-down period after a
// ban signal. Keys are caller-supplied, composed from the session identity
// and the source tag, so two scraping sessions never share a block.
type CircuitBreaker struct {
	mu      sync.Mutex
	blocked map[string]blockRecord
	now     func() time.Time
}

// NewCircuitBreaker creates a breaker with all circuits closed.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		blocked: make(map[string]blockRecord),
		now:     time.Now,
	}
}

// IsOpen reports whether the key is currently blocked. An expired record is
// deleted here, not merely ignored, so stale entries never accumulate.
func (cb *CircuitBreaker) IsOpen(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, ok := cb.blocked[key]
	if !ok {
		return false
	}
	if !cb.now().Before(rec.until) {
		delete(cb.blocked, key)
		return false
	}
	return true
}

// Trip opens the circuit for the key until the cool-down elapses. A second
// trip extends the block only if it would end later than the current one.
func (cb *CircuitBreaker) Trip(key, reason string, cooldown time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	until := cb.now().Add(cooldown)
	if rec, ok := cb.blocked[key]; ok && rec.until.After(until) {
		return
	}
	cb.blocked[key] = blockRecord{until: until, reason: reason}
}

// Reason returns the recorded block reason for an open circuit.
func (cb *CircuitBreaker) Reason(key string) (string, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, ok := cb.blocked[key]
	if !ok || !cb.now().Before(rec.until) {
		return "", false
	}
	return rec.reason, true
}

// Snapshot returns the currently open keys and their expiry times.
func (cb *CircuitBreaker) Snapshot() map[string]time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	open := make(map[string]time.Time)
	for key, rec := range cb.blocked {
		if now.Before(rec.until) {
			open[key] = rec.until
		}
	}
	return open
}
