package connectivity

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

// Chain composes middlewares; the first one is the outermost wrapper.
//
//	wrapped := Chain(Logging(log, "copy_page"), Timeout(time.Minute), Recovery(log))(h)
func Chain(mws ...HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of service with its duration: failures at
// error level, successes at debug.
func Logging(logger *slog.Logger, service string) HandlerMiddleware {
	logger = logger.With("service", service)
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			ms := time.Since(start).Milliseconds()

			if err != nil {
				logger.ErrorContext(ctx, "call failed",
					"duration_ms", ms, "payload_bytes", len(payload), "error", err)
				return resp, err
			}
			logger.DebugContext(ctx, "call ok",
				"duration_ms", ms, "payload_bytes", len(payload), "response_bytes", len(resp))
			return resp, nil
		}
	}
}

// Timeout bounds the context handed to next. Handlers must honour ctx for
// the bound to take effect.
func Timeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, payload)
		}
	}
}

// Recovery turns a panic in next into an *ErrPanic.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "handler panic recovered",
						"panic", r, "stack", string(debug.Stack()))
					resp, err = nil, &ErrPanic{Value: r}
				}
			}()
			return next(ctx, payload)
		}
	}
}
