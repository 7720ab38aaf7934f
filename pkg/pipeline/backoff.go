package pipeline

import "time"

// Backoff is a capped exponential schedule with a fixed multiplier of 2
// and no jitter: retry timing stays reproducible, which matters when
// replaying an incident from the journal.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the pause before retry attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}
