package hostfuncs

import (
	"context"
	"log/slog"
	"time"
)

// Middleware is a function that wraps a ByteHandler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware returns a middleware that catches panics and converts
// them to structured ErrorResponse JSON instead of crashing the host.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "hostfuncs: handler panicked",
						"function", functionName(ctx),
						"extension", extensionName(ctx),
						"panic", r)
					resp = NewPanicError(r).ToJSON()
					err = nil // Return JSON error, not Go error
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware returns a middleware that logs host function invocations at debug level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			attrs := []any{
				"function", functionName(ctx),
				"extension", extensionName(ctx),
			}
			resp, err := next(ctx, payload)
			if err != nil {
				logger.ErrorContext(ctx, "hostfuncs: host function failed", append(attrs, "error", err)...)
				return resp, err
			}
			logger.DebugContext(ctx, "hostfuncs: host function completed",
				append(attrs, "duration", time.Since(start), "response_bytes", len(resp))...)
			return resp, nil
		}
	}
}

func functionName(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.FunctionName()
	}
	return "unknown"
}

func extensionName(ctx context.Context) string {
	if inst, ok := InstanceFrom(ctx); ok {
		return inst.ExtensionID()
	}
	return ""
}
