// Package retry retries model calls that fail with transient errors, with
// exponential backoff.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config holds retry parameters.
type Config struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter scales each delay by a random factor in [1-Jitter, 1+Jitter].
	Jitter float64
}

// DefaultConfig returns 5 attempts starting at 1s, doubling up to 30s,
// with 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Disabled returns a configuration that makes a single attempt.
func Disabled() Config {
	return Config{MaxAttempts: 1}
}

// Delay returns the wait after the given 0-indexed attempt:
// min(MaxDelay, InitialDelay * Multiplier^attempt), then jittered.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		delay *= 1.0 + (rand.Float64()*2-1)*c.Jitter
	}
	return time.Duration(delay)
}
