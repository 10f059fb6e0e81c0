package queue

import "time"

// Backoff is the idle-poll wait policy of the dispatch loop: every
// consecutive empty cycle doubles the wait, up to Cap, and any productive
// cycle resets it.
//
// Delay for attempt n (1-indexed) = min(Cap, Base * 2^n).
// Backoff is not safe for concurrent use; only the loop goroutine touches it.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	attempt int
}

// NewBackoff creates a Backoff with the given base unit and cap.
func NewBackoff(base, maxDelay time.Duration) *Backoff {
	return &Backoff{Base: base, Cap: maxDelay}
}

// Next records an empty cycle and returns how long to wait before the next.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	d := b.Base
	for range b.attempt {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	return d
}

// Reset records a productive cycle.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of consecutive empty cycles so far.
func (b *Backoff) Attempt() int {
	return b.attempt
}
