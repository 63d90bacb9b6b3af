package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/weft-api/weft/internal/web/auth"
	"github.com/weft-api/weft/internal/web/response"
)

const (
	// SubjectKey is the context key for the authenticated subject
	SubjectKey ContextKey = "subject"

	// RolesKey is the context key for the authenticated roles
	RolesKey ContextKey = "roles"
)

// Auth requires a valid bearer token and stores the subject and roles on the
// request context.
func Auth(service *auth.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				response.RenderUnauthorized(w, errors.New("authentication required"))
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				response.RenderUnauthorized(w, errors.New("invalid authorization header"))
				return
			}

			claims, err := service.ValidateToken(token)
			if err != nil {
				response.RenderUnauthorized(w, errors.New("invalid or expired token"))
				return
			}

			ctx := r.Context()
			if sub, ok := claims["sub"].(string); ok {
				ctx = context.WithValue(ctx, SubjectKey, sub)
			}
			if roles, ok := claims["roles"].([]any); ok {
				names := make([]string, 0, len(roles))
				for _, role := range roles {
					if name, ok := role.(string); ok {
						names = append(names, name)
					}
				}
				ctx = context.WithValue(ctx, RolesKey, names)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject extracts the authenticated subject from the context
func GetSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(SubjectKey).(string); ok {
		return sub
	}
	return ""
}

// GetRoles extracts the authenticated roles from the context
func GetRoles(ctx context.Context) []string {
	if roles, ok := ctx.Value(RolesKey).([]string); ok {
		return roles
	}
	return nil
}
