// Package middleware provides the HTTP middleware stack: request IDs,
// structured request logging, panic recovery and bearer-token
// authentication.
package middleware

import "net/http"

// Middleware wraps an http.Handler with additional behavior
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so the first one listed is the outermost
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		handler := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}
