package engine

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer inserts a random pause between consecutive plans of a source.
// The zero value does not wait.
type Pacer struct {
	Min time.Duration
	Max time.Duration
}

// NewPacer builds a Pacer from a rate-limit setting.
func NewPacer(rl RateLimit) Pacer {
	return Pacer{Min: rl.MinDelay, Max: rl.MaxDelay}
}

// Delay returns a random duration in [Min, Max].
func (p Pacer) Delay() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + rand.N(p.Max-p.Min+1)
}

// Wait sleeps for Delay or until ctx is done.
func (p Pacer) Wait(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
