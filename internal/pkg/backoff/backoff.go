// Package backoff computes jittered exponential delays between retries.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Jittered returns a delay for the given 1-based attempt: base doubled per
// attempt, capped at max, then spread uniformly over [d/2, d).
func Jittered(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		return base
	}
	wait := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if wait > max || wait <= 0 {
		wait = max
	}
	half := int64(wait / 2)
	if half <= 0 {
		return wait
	}
	return time.Duration(half + rand.Int63n(half))
}

// Sleep waits for d or until ctx ends, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
