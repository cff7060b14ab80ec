// Package ratelimit gates storefront API requests after the API answers
// 429 Too Many Requests. The Retry-After deadline is held in process or,
// when several sidecars share a Redis, in Redis so all of them back off.
package ratelimit

import (
	"time"
)

// RedisKeyBlockedUntil holds the shared deadline in epoch milliseconds.
// It lives outside the cache key namespace so cache sweeps never see it.
const RedisKeyBlockedUntil = "storefront-ratelimit:blocked_until"

// DefaultBlock is used when a 429 carries no usable Retry-After header.
const DefaultBlock = time.Second

// MaxBlock caps how long a single 429 may block requests.
const MaxBlock = 5 * time.Minute

// State is the current rate limit state.
type State struct {
	// BlockedUntil is the time before which no request should be sent.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when a 429 was last observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether requests must wait at now.
func (s *State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// TimeUntilUnblock returns the remaining wait at now, or 0.
func (s *State) TimeUntilUnblock(now time.Time) time.Duration {
	d := s.BlockedUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
