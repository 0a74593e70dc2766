package connectivity

import (
	"context"
	"log/slog"
)

// WithFallback runs local when the wrapped (remote) handler fails, unless
// the caller's context is done. A nil local handler disables the fallback.
func WithFallback(local Handler, service string, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		if local == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			resp, err := next(ctx, payload)
			if err == nil || ctx.Err() != nil {
				return resp, err
			}
			if logger != nil {
				logger.WarnContext(ctx, "remote failed, falling back to local",
					"service", service, "remote_error", err)
			}
			return local(ctx, payload)
		}
	}
}
