package services

import (
	"context"
	"time"
)

// DefaultRetryAttempts bounds transient-operation retries across the pipeline.
const DefaultRetryAttempts = 5

// Retry runs fn up to attempts times, sleeping delay between tries. It stops
// early on context cancellation or when the error is not retryable. The last
// error is returned when every attempt fails.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt == attempts {
			return lastErr
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}
