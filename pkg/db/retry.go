package db

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 20 * time.Millisecond, MaxDelay: time.Second}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the retry budget
// is spent. Delays grow exponentially with full jitter.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy().MaxDelay
	}

	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff(attempt)):
		}
	}
	return err
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << attempt
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(delay)) + 1)
}
