package utils

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy represents a retry backoff strategy
type BackoffStrategy interface {
	// NextDelay returns the delay before retry number attempt (0-indexed)
	NextDelay(attempt int) time.Duration
}

// ConstantBackoff waits the same delay before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

func NewConstantBackoff(delay time.Duration) *ConstantBackoff {
	return &ConstantBackoff{Delay: delay}
}

func (cb *ConstantBackoff) NextDelay(int) time.Duration {
	return cb.Delay
}

// ExponentialBackoff multiplies the delay on every attempt up to MaxDelay.
// With Jitter the capped delay is scaled by a random factor in [0.5, 1.5).
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     bool
}

func NewExponentialBackoff(baseDelay, maxDelay time.Duration, multiplier float64, jitter bool) *ExponentialBackoff {
	if multiplier <= 0 {
		multiplier = 2.0
	}
	return &ExponentialBackoff{
		BaseDelay:  baseDelay,
		Multiplier: multiplier,
		MaxDelay:   maxDelay,
		Jitter:     jitter,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := math.Min(float64(eb.BaseDelay)*math.Pow(eb.Multiplier, float64(attempt)), float64(eb.MaxDelay))
	if eb.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// BackoffFromConfig builds a strategy from config values; unknown types fall back to
// exponential with jitter. A zero maxMs caps delays at 30s.
func BackoffFromConfig(backoffType string, baseMs, maxMs int) BackoffStrategy {
	baseDelay := time.Duration(baseMs) * time.Millisecond
	maxDelay := time.Duration(maxMs) * time.Millisecond
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}
	if backoffType == "constant" {
		return NewConstantBackoff(min(baseDelay, maxDelay))
	}
	return NewExponentialBackoff(baseDelay, maxDelay, 2.0, true)
}
