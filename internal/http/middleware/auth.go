package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cursormirror/cursormirrord/internal/auth"
)

// authPrincipalKey is the context key for the authenticated principal id,
// used downstream by the RateLimiter to identify the caller.
type authPrincipalKey struct{}

// AuthRealm is the Basic-auth realm advertised on 401 responses.
const AuthRealm = "CursorWindow"

// GetPrincipal returns the authenticated principal id from the context, or
// "" if the request was unauthenticated.
func GetPrincipal(ctx context.Context) string {
	if p, ok := ctx.Value(authPrincipalKey{}).(string); ok {
		return p
	}
	return ""
}

// Auth builds an authentication middleware against mgr. When required is
// false the method set is still honored (credentials are validated when
// presented) but an unauthenticated request is allowed through. Order of
// checks: bearer/query token against an existing auth session, then the
// credential schemes enabled on mgr.
func Auth(mgr *auth.Manager, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mgr == nil || mgr.Enabled(auth.MethodNone) {
				next.ServeHTTP(w, r)
				return
			}

			principal, ok := authenticate(mgr, r)
			if ok {
				ctx := context.WithValue(r.Context(), authPrincipalKey{}, principal)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if !required {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("WWW-Authenticate", `Basic realm="`+AuthRealm+`"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

func authenticate(mgr *auth.Manager, r *http.Request) (string, bool) {
	if token := bearerToken(r); token != "" && mgr.ValidateToken(token) {
		return token, true
	}

	if mgr.Enabled(auth.MethodBasic) {
		if token, err := mgr.AuthenticateBasic(r); err == nil {
			return token, true
		}
	}
	if mgr.Enabled(auth.MethodAPIKey) {
		if token, err := mgr.AuthenticateAPIKey(r); err == nil {
			return token, true
		}
	}
	if mgr.Enabled(auth.MethodICloud) {
		deviceID := r.Header.Get("X-Device-ID")
		identityToken := r.Header.Get("X-Identity-Token")
		if token, err := mgr.AuthenticateICloud(deviceID, identityToken); err == nil {
			return token, true
		}
	}
	return "", false
}

// bearerToken extracts a token from the Authorization: Bearer header or a
// "token" query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
