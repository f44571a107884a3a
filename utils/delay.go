package utils

import (
	"context"
	"math/rand"
	"time"
)

// RandomDelay sleeps for a random duration between min and max, or until ctx is done.
// The controller calls it between two page cycles.
//
// WHY RANDOM? A request every exactly 2 seconds is an easy pattern to spot.
// Spreading the pauses between min and max looks like someone reading
// through the results.
//
// With min 2s and max 5s:
//
//	page 1 -> wait 3.4s -> page 2 -> wait 2.1s -> page 3 ...
//
// When max <= min it always waits min.
func RandomDelay(ctx context.Context, min, max time.Duration) error {
	sleep := min
	if diff := max - min; diff > 0 {
		sleep += time.Duration(rand.Int63n(int64(diff)))
	}
	return Sleep(ctx, sleep)
}

// Sleep waits for d unless ctx is cancelled first. It returns ctx.Err() in
// that case, so callers can tell an interrupted wait from a finished one.
// Unlike time.Sleep it never outlives a cancelled run.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
