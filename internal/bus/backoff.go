package bus

import "time"

// Backoff produces the exponential reconnect delay sequence used by S and G
// when the bus connection drops: initial, doubling, capped at max.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a Backoff starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{initial: initial, max: max, current: initial}
}

// Next returns the next delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset restores the sequence to its initial delay, called after a
// successful reconnect.
func (b *Backoff) Reset() {
	b.current = b.initial
}
