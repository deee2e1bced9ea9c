package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridian-cd/meridian/domain"
)

// WithRetry runs fn, retrying transient backend errors with exponential
// backoff up to maxAttempts. Once the cap is reached the last transient
// error is escalated to a fatal one. Fatal errors and non-backend errors
// return immediately.
func WithRetry(ctx context.Context, op string, maxAttempts int, backoff time.Duration, fn func(context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	delay := backoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !domain.IsTransientBackend(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		slog.Warn("Transient backend error, retrying",
			"layer", "backend",
			"operation", op,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff", delay,
			"error", lastErr)

		select {
		case <-ctx.Done():
			return &domain.FatalBackendError{Op: op, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}

	return &domain.FatalBackendError{Op: op, Err: lastErr}
}
