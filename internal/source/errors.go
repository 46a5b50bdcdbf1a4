package source

import "errors"

// ErrBlocked marks a ban signal from a source platform. Callers match it
// with errors.Is and open the circuit for the source instead of retrying.
var ErrBlocked = errors.New("source blocked")

// ErrRateLimited marks a fetch denied by the local request budget before
// any network call was made.
var ErrRateLimited = errors.New("source rate limited")

// BlockedError wraps ErrBlocked with the concrete signal the connector saw,
// such as "captcha_challenge" or "http_429".
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	if e.Reason == "" {
		return ErrBlocked.Error()
	}
	return ErrBlocked.Error() + ": " + e.Reason
}

func (e *BlockedError) Unwrap() error { return ErrBlocked }
