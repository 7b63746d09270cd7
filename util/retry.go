package util

import (
	"context"
	"math/rand"
	"time"
)

// Backoff produces exponentially growing, jittered retry delays between a
// minimum and maximum. The zero value is not usable; use NewBackoff.
type Backoff struct {
	min     time.Duration
	max     time.Duration
	current time.Duration
	rng     *rand.Rand
}

// NewBackoff returns a Backoff starting at min and capping at max.
func NewBackoff(min, max time.Duration, rng *rand.Rand) *Backoff {
	if min <= 0 {
		min = time.Millisecond
	}
	if max < min {
		max = min
	}
	return &Backoff{min: min, max: max, rng: rng}
}

// Next returns the next delay: min on the first call, then doubling up to
// max, with +/-20% jitter applied when a rand source was provided.
func (b *Backoff) Next() time.Duration {
	if b.current <= 0 {
		b.current = b.min
	} else {
		next := b.current * 2
		if next > b.max || next < b.current {
			next = b.max
		}
		b.current = next
	}
	return b.jitter(b.current)
}

// Reset makes the next delay start from min again.
func (b *Backoff) Reset() {
	b.current = 0
}

func (b *Backoff) jitter(base time.Duration) time.Duration {
	if b.rng == nil || base <= 0 {
		return base
	}
	maxJitter := base / 5
	if maxJitter <= 0 {
		return base
	}
	delta := time.Duration(b.rng.Int63n(int64(maxJitter)*2+1)) - maxJitter
	return base + delta
}

// Wait blocks for the given duration and exits early when the context is
// canceled, reporting whether the full delay elapsed.
func Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
