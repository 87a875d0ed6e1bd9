package health

import (
	"math"
	"math/rand"
	"time"
)

// RetryStrategy selects the delay curve between attempts.
type RetryStrategy string

const (
	RetryExponential RetryStrategy = "exponential"
	RetryLinear      RetryStrategy = "linear"
	RetryFixed       RetryStrategy = "fixed"
)

// RetryPolicy computes the delay before retry n. Exponential:
// base*multiplier^n. Linear: base*(1+multiplier*n). Fixed: base.
// Delays are clamped to MaxDelay; jitter multiplies by a uniform
// factor in [0.8, 1.2].
type RetryPolicy struct {
	Strategy    RetryStrategy
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Strategy:    RetryExponential,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
		MaxAttempts: 3,
	}
}

// Delay returns the pause before retry attempt n (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := float64(p.BaseDelay)
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	var delay float64
	switch p.Strategy {
	case RetryLinear:
		delay = base * (1 + multiplier*float64(attempt))
	case RetryFixed:
		delay = base
	default:
		delay = base * math.Pow(multiplier, float64(attempt))
	}

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		delay *= 0.8 + rand.Float64()*0.4
	}
	return time.Duration(delay)
}
