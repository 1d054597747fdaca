package middleware

import (
	"net/http"
	"strings"

	"github.com/cursormirror/cursormirrord/internal/ratelimit"
)

// RateLimit admits or rejects requests against limiter. Identity is the
// authenticated principal if a prior Auth middleware already ran (not the
// case here, since RateLimiter is mounted ahead of Auth in the stack), else
// the client IP. isAuthEndpoint paths get the configured
// auth_endpoint_multiplier applied to their effective limit.
func RateLimit(limiter *ratelimit.Limiter, authPathPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := ratelimit.Identity(r, GetPrincipal(r.Context()))
			isAuthEndpoint := false
			for _, prefix := range authPathPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					isAuthEndpoint = true
					break
				}
			}

			if !limiter.Allow(identity, r.URL.Path, isAuthEndpoint) {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
