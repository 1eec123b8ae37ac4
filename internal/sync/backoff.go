package sync

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/example/groupware-scheduler/internal/calendar"
)

// retryPolicy governs retries of individual provider calls. Rate limiting
// and provider outages are retryable; everything else fails immediately.
type retryPolicy struct {
	maxAttempts      int
	rateLimitDelay   time.Duration
	unavailableDelay time.Duration
	maxDelay         time.Duration
	sleep            func(context.Context, time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts:      3,
		rateLimitDelay:   500 * time.Millisecond,
		unavailableDelay: 2 * time.Second,
		maxDelay:         30 * time.Second,
		sleep:            sleepContext,
	}
}

// do executes fn, retrying retryable provider errors with exponential
// backoff plus jitter. The last error is returned after exhaustion.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.delayFor(lastErr, attempt)
			if err := p.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// delayFor doubles the base delay per attempt and adds up to 50% jitter so
// concurrent runs do not hammer the provider in lockstep.
func (p retryPolicy) delayFor(err error, attempt int) time.Duration {
	base := p.rateLimitDelay
	if errors.Is(err, calendar.ErrRemoteUnavailable) {
		base = p.unavailableDelay
	}

	delay := base << (attempt - 1)
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

func isRetryable(err error) bool {
	return errors.Is(err, calendar.ErrRateLimited) || errors.Is(err, calendar.ErrRemoteUnavailable)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
