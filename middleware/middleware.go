// Package middleware wraps service invocations on the skeleton side.
//
// Middlewares compose like an onion:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	A.before → B.before → C.before → handler → C.after → B.after → A.after
//
// A middleware may short-circuit by returning a failed Response without calling next.
package middleware

import (
	"context"

	"mini-soa/message"
)

// HandlerFunc invokes a service with a complete call and returns its response.
type HandlerFunc func(ctx context.Context, call *message.Call) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one, applied in the given order.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
