package mw

import (
	"context"
	"net/http"
	"strings"

	"tabletap/internal/model"
)

type contextKey string

const PrincipalCtxKey contextKey = "principal"

// SessionResolver is the auth collaborator boundary: token in, principal
// out.
type SessionResolver interface {
	ResolveSession(token string) (model.Principal, error)
}

// AuthMiddleware resolves the bearer token and requires a staff principal.
func AuthMiddleware(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := resolver.ResolveSession(token)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			if principal.Kind != model.PrincipalStaff {
				http.Error(w, "staff access required", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalCtxKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// PrincipalFrom returns the staff principal set by AuthMiddleware.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(PrincipalCtxKey).(model.Principal)
	return p, ok
}
