package transport

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryOptions shapes the optional backoff wrapper. The protocol itself
// never retries; callers opt in by wrapping Execute with WithRetry.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// retryable reports whether an error is worth another attempt. Server 4xx
// responses are not: the request will fail identically next time.
func retryable(err error) bool {
	var ne *NetworkError
	if !errors.As(err, &ne) {
		return false
	}
	if ne.Status >= 400 && ne.Status < 500 {
		return false
	}
	return true
}

// WithRetry runs fn with exponential backoff and jitter until it succeeds,
// returns a non-retryable error, exhausts MaxAttempts, or ctx is done.
func WithRetry(ctx context.Context, opts RetryOptions, fn func(context.Context) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	delay := opts.InitialDelay
	var err error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil || !retryable(err) {
			return err
		}
		if attempt == opts.MaxAttempts {
			break
		}
		sleep := delay
		if sleep > 0 {
			sleep += time.Duration(rand.Int63n(int64(sleep)/2 + 1))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		delay = time.Duration(float64(delay) * opts.Multiplier)
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return err
}
