// Package ratelimit records the Teamtailor rate limit headers
// (X-Rate-Limit-Limit, X-Rate-Limit-Remaining, X-Rate-Limit-Reset) in Redis so
// that every replica exporting against the same API key sees the same budget.
// The client consults the recorded window before each request and waits for
// the reset when a fresh window is exhausted. 429 handling stays in the
// client's retry loop.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "teamtailor:rate_limit:remaining"
	RedisKeyLimit          = "teamtailor:rate_limit:limit"
	RedisKeyResetTimestamp = "teamtailor:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "teamtailor:rate_limit:last_update"
)

// Response headers sent by the Teamtailor API.
const (
	HeaderLimit     = "X-Rate-Limit-Limit"
	HeaderRemaining = "X-Rate-Limit-Remaining"
	HeaderReset     = "X-Rate-Limit-Reset"
)

// Thresholds on the remaining request budget.
const (
	// RemainingThresholdLow marks the window as nearly exhausted; the next
	// requests are likely to be answered with 429.
	RemainingThresholdLow = 5

	// RemainingThresholdHealthy marks the window as healthy.
	RemainingThresholdHealthy = 10

	// DefaultLimit is the documented Teamtailor budget per window.
	DefaultLimit = 50
)

const (
	// StateMaxAge is how long a recorded window is trusted before it is
	// ignored.
	StateMaxAge = time.Minute

	// MaxResetWait caps the wait for a recorded window to reset.
	MaxResetWait = time.Minute
)

// State is the last observed rate limit window.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// Limit is the window size in requests.
	Limit int `json:"limit"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the headers were observed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge at now.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// IsLow returns true if the remaining budget is below RemainingThresholdLow.
func (s *State) IsLow() bool {
	return s.Remaining < RemainingThresholdLow
}

// IsExhausted returns true if no requests remain and the window has not
// reset at now.
func (s *State) IsExhausted(now time.Time) bool {
	return s.Remaining <= 0 && s.TimeUntilReset(now) > 0
}

// TimeUntilReset returns the duration from now until the window resets, or 0.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	duration := s.ResetAt.Sub(now)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}
