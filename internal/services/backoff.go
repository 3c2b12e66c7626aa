package services

import (
	"context"
	"math/rand"
	"time"
)

// BackoffConfig holds exponential backoff settings for login retries
type BackoffConfig struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the retry that follows failed attempt n (1-based):
// min(Max, Base*2^(n-1)) plus jitter, where jitter is drawn from [0, Base).
func (b BackoffConfig) Delay(n int, jitter func(time.Duration) time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := b.Base
	for i := 1; i < n && (b.Max <= 0 || delay < b.Max); i++ {
		delay *= 2
	}
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	if jitter != nil && b.Base > 0 {
		delay += jitter(b.Base)
	}
	return delay
}

// randomJitter returns a uniform duration in [0, limit)
func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(limit)))
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
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
