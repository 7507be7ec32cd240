package api

import (
	"context"
	"net/http"
	"strings"
)

// UserHeader carries the caller identity.
const UserHeader = "X-User"

// anonymous is recorded when a request names no user.
const anonymous = "anonymous"

type userCtxKey struct{}

// WithUser returns a context carrying the caller identity.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext returns the caller identity, or "anonymous".
func UserFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(userCtxKey{}).(string); ok && u != "" {
		return u
	}
	return anonymous
}

// IdentityMiddleware stores the X-User header (falling back to
// X-Remote-User) in the request context.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get(UserHeader))
			if user == "" {
				user = strings.TrimSpace(r.Header.Get("X-Remote-User"))
			}
			if user == "" {
				user = anonymous
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
