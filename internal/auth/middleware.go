package auth

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is the type for values the middleware stores on the
// request context.
type ContextKey string

// ContextKeyUser carries the authenticated user id.
const ContextKeyUser ContextKey = "user"

// Middleware validates Bearer tokens on wrapped handlers and stores the
// authenticated user on the request context. When authentication is
// disabled requests pass through untouched.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.enabled {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUser, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the authenticated user id, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyUser).(string)
	return id, ok
}
