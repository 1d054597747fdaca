package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cursormirror/cursormirrord/internal/ratelimit"
)

func TestRateLimitAdmitsWithinLimit(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{Enabled: true, RequestsPerMinute: 10})
	h := RateLimit(limiter)(okHandler())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/stream/master.m3u8", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{Enabled: true, RequestsPerMinute: 1})
	h := RateLimit(limiter)(okHandler())

	newReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/stream/master.m3u8", nil)
		r.RemoteAddr = "10.0.0.2:1234"
		return r
	}

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, newReq())
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, newReq())
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}

func TestRateLimitAppliesAuthMultiplierToMatchedPrefix(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{Enabled: true, RequestsPerMinute: 10, AuthEndpointMultiplier: 0.1})
	h := RateLimit(limiter, "/admin")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	r.RemoteAddr = "10.0.0.3:1234"

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r)
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}
