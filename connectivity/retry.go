package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// WithRetry retries failed calls with exponential backoff starting at
// baseBackoff. Context cancellation stops the loop. Errors that cannot
// change on retry (unknown operation, handler panic) are returned at once.
func WithRetry(maxRetries int, baseBackoff time.Duration, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				resp, err := next(ctx, payload)
				if err == nil {
					return resp, nil
				}
				lastErr = err

				if ctx.Err() != nil || !retryable(err) {
					return nil, err
				}
				if attempt == maxRetries {
					break
				}

				wait := baseBackoff << attempt
				if logger != nil {
					logger.WarnContext(ctx, "retrying call",
						"attempt", attempt+1,
						"max_retries", maxRetries,
						"backoff_ms", wait.Milliseconds(),
						"error", err)
				}
				select {
				case <-ctx.Done():
					return nil, lastErr
				case <-time.After(wait):
				}
			}
			return nil, lastErr
		}
	}
}

func retryable(err error) bool {
	var notFound *ErrServiceNotFound
	var panicked *ErrPanic
	return !errors.As(err, &notFound) && !errors.As(err, &panicked)
}
