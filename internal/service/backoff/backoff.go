package backoff

import (
	"math"
	"time"
)

// Policy computes retry schedules for failed records. It is pure: the same
// inputs always produce the same outputs.
type Policy struct {
	Base        time.Duration
	Multiplier  float64
	MaxExponent int
	MaxAttempts int
}

// DefaultPolicy mirrors the configuration defaults: 30s base, doubling,
// capped at 2^6, five attempts before dead-lettering.
func DefaultPolicy() Policy {
	return Policy{
		Base:        30 * time.Second,
		Multiplier:  2,
		MaxExponent: 6,
		MaxAttempts: 5,
	}
}

// Delay returns the backoff interval for the given retry count:
// base * multiplier^min(retryCount, maxExponent).
func (p Policy) Delay(retryCount int) time.Duration {
	exponent := retryCount
	if exponent > p.MaxExponent {
		exponent = p.MaxExponent
	}

	return time.Duration(float64(p.Base) * math.Pow(p.Multiplier, float64(exponent)))
}

// NextRetryAt returns the earliest time the next attempt may run.
func (p Policy) NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(p.Delay(retryCount))
}

// Exhausted reports whether the retry budget is spent and the record should
// be dead-lettered instead of rescheduled.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxAttempts
}
