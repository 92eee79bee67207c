// ABOUTME: Exponential backoff schedule for reconnection attempts.
// ABOUTME: Doubles from Initial to Max, with optional jitter; testable in isolation.

package client

import (
	"math/rand"
	"time"
)

// Backoff produces the delay before each successive reconnection attempt.
// The zero value is unusable; call newBackoff or fill Initial and Max.
type Backoff struct {
	// Initial is the first delay.
	Initial time.Duration
	// Max caps the doubled delay.
	Max time.Duration
	// Jitter, when set, randomizes each delay within ±25%.
	Jitter bool

	attempt int
}

func newBackoff(initial, max time.Duration, jitter bool) *Backoff {
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	if max < initial {
		max = 30 * time.Second
	}
	return &Backoff{Initial: initial, Max: max, Jitter: jitter}
}

// Next returns the delay for the upcoming attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.Initial << b.attempt
	if d > b.Max || d <= 0 { // overflow guard on the shift
		d = b.Max
	} else {
		b.attempt++
	}
	if b.Jitter {
		// ±25% keeps herds of clients from re-dialing in lockstep.
		span := int64(d / 2)
		if span > 0 {
			d = d - time.Duration(span)/2 + time.Duration(rand.Int63n(span))
		}
	}
	return d
}

// Reset returns the schedule to its initial delay after a successful
// connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt reports how many times the schedule has advanced.
func (b *Backoff) Attempt() int {
	return b.attempt
}
