package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayGrowsExponentially(t *testing.T) {
	policy := Policy{
		Base:        30 * time.Second,
		Multiplier:  2,
		MaxExponent: 6,
		MaxAttempts: 5,
	}

	assert.Equal(t, 30*time.Second, policy.Delay(0))
	assert.Equal(t, 60*time.Second, policy.Delay(1))
	assert.Equal(t, 120*time.Second, policy.Delay(2))
	assert.Equal(t, 240*time.Second, policy.Delay(3))
}

func TestDelayIsMonotonicAndCapped(t *testing.T) {
	policy := DefaultPolicy()

	prev := time.Duration(0)
	for count := 0; count < 20; count++ {
		delay := policy.Delay(count)
		assert.GreaterOrEqual(t, delay, prev, "delay must not shrink at retry_count %d", count)
		prev = delay
	}

	// Past the exponent cap every delay is identical.
	capped := policy.Delay(policy.MaxExponent)
	assert.Equal(t, capped, policy.Delay(policy.MaxExponent+1))
	assert.Equal(t, capped, policy.Delay(100))
}

func TestNextRetryAt(t *testing.T) {
	policy := Policy{Base: time.Minute, Multiplier: 2, MaxExponent: 4, MaxAttempts: 3}
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(time.Minute), policy.NextRetryAt(now, 0))
	assert.Equal(t, now.Add(4*time.Minute), policy.NextRetryAt(now, 2))
}

func TestExhausted(t *testing.T) {
	policy := Policy{Base: time.Second, Multiplier: 2, MaxExponent: 4, MaxAttempts: 3}

	assert.False(t, policy.Exhausted(0))
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
	assert.True(t, policy.Exhausted(4))
}
