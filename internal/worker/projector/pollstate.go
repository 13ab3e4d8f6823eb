package projector

import "time"

// pollState tracks the adaptive idle interval for one tenant worker. The
// interval starts at the configured minimum, doubles for every consecutive
// empty poll up to the maximum, and resets as soon as work is found. Each
// worker owns its own state; nothing here is shared across instances.
type pollState struct {
	minIdle time.Duration
	maxIdle time.Duration
	current time.Duration
}

func newPollState(minIdle, maxIdle time.Duration) *pollState {
	return &pollState{
		minIdle: minIdle,
		maxIdle: maxIdle,
		current: minIdle,
	}
}

// NextIdle returns the interval to sleep after an empty poll and grows the
// next one.
func (s *pollState) NextIdle() time.Duration {
	interval := s.current
	s.current *= 2
	if s.current > s.maxIdle {
		s.current = s.maxIdle
	}

	return interval
}

// Reset returns the state to the minimum interval after a non-empty poll.
func (s *pollState) Reset() {
	s.current = s.minIdle
}
