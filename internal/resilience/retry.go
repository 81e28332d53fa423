package resilience

import (
	"math"
	"time"
)

// RetryPolicy controls the backoff schedule for one guarded operation.
type RetryPolicy struct {
	MaxRetries        int           `yaml:"max_retries"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Jitter            bool          `yaml:"jitter"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// DelayFor computes the backoff delay after the (attempt+1)-th failure:
// min(base * mult^attempt, max), scaled by a uniform factor in [0.5, 1.0]
// when jitter is enabled. rnd must return values in [0, 1).
func (p RetryPolicy) DelayFor(attempt int, rnd func() float64) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.5 + 0.5*rnd()
	}
	return time.Duration(d)
}
