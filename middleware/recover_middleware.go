package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mini-soa/message"
)

// RecoverMiddleware turns a panicking implementation into an internal-error response.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (resp *message.Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("service panicked",
						zap.Stringer("service", call.Signature()), zap.Any("panic", r), zap.Stack("stack"))
					resp = message.Failure(call.Signature(), fmt.Sprintf("Internal error: %v", r))
				}
			}()
			return next(ctx, call)
		}
	}
}
