package upstream

import (
	"math/rand"
	"sync/atomic"
	"time"
)

const (
	jitterMin = 250 * time.Millisecond
	jitterMax = 1000 * time.Millisecond
)

// Backoff produces exponentially growing reconnect delays with jitter. The
// attempt counter resets to zero on successful authentication so a recovered
// link retries quickly after the next blip.
type Backoff struct {
	base     time.Duration
	max      time.Duration
	attempts atomic.Int32
}

// NewBackoff creates a Backoff with the given base delay and ceiling.
func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{base: base, max: max}
}

// Next returns the delay before the next reconnect attempt:
// min(max, base*2^attempt) plus 250ms-1s of random jitter.
func (b *Backoff) Next() time.Duration {
	a := b.attempts.Add(1)
	d := b.base << uint(a)
	if d > b.max || d <= 0 { // overflow guard on large shifts
		d = b.max
	}
	jitter := jitterMin + time.Duration(rand.Int63n(int64(jitterMax-jitterMin)))
	return d + jitter
}

// Reset zeroes the attempt counter.
func (b *Backoff) Reset() {
	b.attempts.Store(0)
}

// Attempts returns the number of failed attempts since the last reset.
func (b *Backoff) Attempts() int {
	return int(b.attempts.Load())
}
