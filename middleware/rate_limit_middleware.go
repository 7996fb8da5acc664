package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-soa/message"
)

// StatusRateLimited is the failure status of a rejected invocation.
const StatusRateLimited = "Rate limit exceeded."

// RateLimitMiddleware admits r invocations per second with the given burst, using a
// token bucket shared by every service of the server.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Response {
			if !limiter.Allow() {
				return message.Failure(call.Signature(), StatusRateLimited)
			}
			return next(ctx, call)
		}
	}
}
