package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/weft-api/weft/internal/web/response"
)

// Recovery turns handler panics into 500 responses instead of dropped
// connections, logging the stack trace.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", GetRequestID(r.Context())),
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()),
					)
					response.RenderError(w, http.StatusInternalServerError,
						errors.New("an unexpected error occurred"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
