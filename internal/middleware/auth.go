package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type principalKey struct{}

// WithPrincipal stores the principal name in the context.
func WithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, principalKey{}, name)
}

// PrincipalFromContext extracts the principal name from the context.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(principalKey{}).(string)
	return name, ok
}

// Auth requires a valid bearer token and stores its subject as the
// principal. A nil validator lets every request through.
func Auth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w, "unauthorized: bearer token required")
				return
			}
			claims, err := v.Validate(r.Context(), token)
			if err != nil || claims.Subject == "" {
				writeUnauthorized(w, "unauthorized: invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), claims.Subject)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    http.StatusUnauthorized,
		"message": msg,
	})
}
