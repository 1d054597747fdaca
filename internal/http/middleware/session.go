package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/cursormirror/cursormirrord/internal/session"
)

// streamTokenKey is the context key for the acquired stream token.
type streamTokenKey struct{}

// StreamTokenCookie is the cookie the session middleware uses to remember a
// viewer's stream token across the master/media/segment requests that make
// up one playback.
const StreamTokenCookie = "cm_stream"

// GetStreamToken returns the session token used to serve the current
// request, for handlers that must touch or release it explicitly.
func GetStreamToken(ctx context.Context) string {
	if t, ok := ctx.Value(streamTokenKey{}).(string); ok {
		return t
	}
	return ""
}

// Session gates /stream/* requests on mgr's single-viewer policy. A request
// presenting a valid cm_stream cookie has it touched and passes through; one
// without acquires a new token and sets the cookie. A stream already held by
// another viewer yields 409 Conflict.
func Session(mgr *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(StreamTokenCookie); err == nil {
				token = c.Value
			}

			if token != "" && mgr.Validate(token) {
				mgr.Touch(token)
			} else {
				acquired, err := mgr.AcquireStream()
				if err != nil {
					if errors.Is(err, session.ErrStreamInUse) {
						http.Error(w, "stream in use", http.StatusConflict)
						return
					}
					http.Error(w, "session error", http.StatusInternalServerError)
					return
				}
				token = acquired
				http.SetCookie(w, &http.Cookie{
					Name:     StreamTokenCookie,
					Value:    token,
					Path:     "/stream",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), streamTokenKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
