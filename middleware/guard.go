package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/authmode/authmode/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the verified access token claims injected by
// Guard, or false when the request did not pass through it.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return claims, ok
}

// Verifier verifies a raw token of an expected type. Implemented by
// token.Service.
type Verifier interface {
	Verify(tokenStr string, expected token.Type) (*token.Claims, error)
}

// Guard rejects requests without a valid bearer access token and
// injects the verified claims into the request context. Every failure
// is a plain 401; no detail leaks to the caller.
func Guard(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(raw, token.TypeAccess)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission wraps Guard's output with a permission check. The
// "all" permission satisfies any requirement.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, p := range claims.Permissions {
				if p == permission || p == "all" {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	raw := value[len(bearer):]
	if raw == "" {
		return "", false
	}
	return raw, true
}
