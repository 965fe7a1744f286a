package models

import "time"

// RateLimitResult is the outcome of a single rate limit check. It is never
// persisted; every check recomputes it from the backing store.
type RateLimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	Reset      time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds, for
// the Retry-After header and the 429 response body.
func (r RateLimitResult) RetryAfterSeconds() int64 {
	if r.RetryAfter <= 0 {
		return 0
	}
	secs := int64(r.RetryAfter / time.Second)
	if r.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}
