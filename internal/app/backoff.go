package app

import (
	"context"
	"math/rand"
	"time"
)

// Default retry delays between failed sends.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second
)

// backoffJitter is the fraction each delay may move either way.
const backoffJitter = 0.2

// backoff spaces out retries of one batch: the delay doubles per failed
// attempt up to ceiling and is jittered so that many miners pointed at one
// service do not retry in step.
type backoff struct {
	initial time.Duration
	ceiling time.Duration
	attempt int
	rand    func() float64
}

func newBackoff(initial, ceiling time.Duration) *backoff {
	return &backoff{initial: initial, ceiling: ceiling, rand: rand.Float64}
}

// Current returns the delay before the next retry, without jitter.
func (b *backoff) Current() time.Duration {
	d := b.initial
	for i := 0; i < b.attempt && d < b.ceiling; i++ {
		d *= 2
	}
	if d > b.ceiling {
		d = b.ceiling
	}
	return d
}

// Attempts returns the number of retries waited for since the last Reset.
func (b *backoff) Attempts() int { return b.attempt }

// Wait sleeps for the jittered current delay and counts the attempt. It
// returns early with ctx's error.
func (b *backoff) Wait(ctx context.Context) error {
	d := b.Current()
	d += time.Duration(float64(d) * backoffJitter * (2*b.rand() - 1))
	b.attempt++

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset starts over from the initial delay after a successful send.
func (b *backoff) Reset() { b.attempt = 0 }
