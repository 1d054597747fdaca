package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursormirror/cursormirrord/internal/session"
)

func TestSessionAcquiresTokenAndSetsCookie(t *testing.T) {
	mgr := session.New(session.Config{IdleTimeout: time.Minute})
	h := Session(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetStreamToken(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream/master.m3u8", nil))

	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, StreamTokenCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestSessionReusesValidCookie(t *testing.T) {
	mgr := session.New(session.Config{IdleTimeout: time.Minute})
	token, err := mgr.AcquireStream()
	require.NoError(t, err)

	h := Session(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, token, GetStreamToken(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/stream/master.m3u8", nil)
	r.AddCookie(&http.Cookie{Name: StreamTokenCookie, Value: token})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies(), "no new cookie should be set for a reused valid session")
}

func TestSessionSingleViewerRejectsSecondAcquire(t *testing.T) {
	mgr := session.New(session.Config{IdleTimeout: time.Minute, SingleViewerOnly: true})
	_, err := mgr.AcquireStream()
	require.NoError(t, err)

	h := Session(mgr)(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream/master.m3u8", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessionInvalidCookieAcquiresNewToken(t *testing.T) {
	mgr := session.New(session.Config{IdleTimeout: time.Minute})
	h := Session(mgr)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/stream/master.m3u8", nil)
	r.AddCookie(&http.Cookie{Name: StreamTokenCookie, Value: "not-a-real-token"})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, w.Result().Cookies(), 1)
	assert.NotEqual(t, "not-a-real-token", w.Result().Cookies()[0].Value)
}

func TestGetStreamTokenEmptyWhenUnset(t *testing.T) {
	assert.Empty(t, GetStreamToken(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
