package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-soa/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Response {
			start := time.Now()
			resp := next(ctx, call)
			fields := []zap.Field{
				zap.Stringer("service", call.Signature()),
				zap.Duration("duration", time.Since(start)),
			}
			if resp == nil {
				logger.Warn("invocation returned no response", fields...)
				return resp
			}
			if !resp.Successful() {
				logger.Info("invocation failed", append(fields, zap.String("status", resp.Status()))...)
				return resp
			}
			logger.Debug("invocation", fields...)
			return resp
		}
	}
}
