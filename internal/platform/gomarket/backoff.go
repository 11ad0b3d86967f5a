package gomarket

import "time"

const (
	// DefaultInitialBackoff is the first reconnect delay after a start.
	DefaultInitialBackoff = 1000 * time.Millisecond

	// DefaultMaxBackoff caps the exponential reconnect delay.
	DefaultMaxBackoff = 60000 * time.Millisecond
)

// Backoff is a doubling reconnect delay. It is owned by the connection loop
// and reset on every explicit Start.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff returns a Backoff starting at initial and capped at max.
// Non-positive values fall back to the defaults.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max, current: initial}
}

// Current returns the delay the next failure will wait.
func (b *Backoff) Current() time.Duration { return b.current }

// Next returns the delay to wait now and doubles the stored delay up to the
// cap.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset restores the initial delay.
func (b *Backoff) Reset() { b.current = b.initial }
