// Package ratelimit paces OpenSea requests and shares 429 cooldowns between
// processes. A Pacer spaces requests locally with a token bucket; a Cooldown
// publishes the backoff of a rate-limited response to Redis so that every
// process using the same API key waits it out before its next request.
package ratelimit

import (
	"time"
)

// Redis keys for cooldown state storage.
const (
	RedisKeyCooldownUntil = "nftide:rate_limit:cooldown_until"
	RedisKeyLastUpdate    = "nftide:rate_limit:last_update"
)

// CooldownState is the shared "do not call before" instant.
type CooldownState struct {
	// Until is the instant before which no request should be issued.
	// The zero value means no cooldown is in effect.
	Until time.Time `json:"until"`

	// LastUpdate is when a process last recorded a cooldown.
	LastUpdate time.Time `json:"last_update"`
}

// Active reports whether the cooldown has not yet elapsed.
func (s *CooldownState) Active() bool {
	return s.Remaining() > 0
}

// Remaining returns the duration until the cooldown elapses.
// Returns 0 if the cooldown has already passed.
func (s *CooldownState) Remaining() time.Duration {
	if s.Until.IsZero() {
		return 0
	}
	duration := time.Until(s.Until)
	if duration < 0 {
		return 0
	}
	return duration
}

// Extends reports whether a cooldown ending at until would outlast this one.
func (s *CooldownState) Extends(until time.Time) bool {
	return until.After(s.Until)
}

// IsStale returns true if the state was last updated longer ago than maxAge.
func (s *CooldownState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
