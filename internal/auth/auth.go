// Package auth implements the AuthManager: constant-time credential checks
// across the closed set of supported methods, and the resulting session
// table used by downstream Session middleware.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cursormirror/cursormirrord/internal/clock"
)

// Method is one of the closed set of supported credential schemes.
type Method string

const (
	MethodNone   Method = "none"
	MethodBasic  Method = "basic"
	MethodAPIKey Method = "apikey"
	MethodToken  Method = "token"
	MethodICloud Method = "icloud"
)

// Config configures a Manager. The method set enabled is exactly
// {Methods}; any method not present rejects with ErrUnsupportedMethod.
type Config struct {
	Methods         []Method
	Username        string
	Password        string
	APIKey          string
	SessionDuration time.Duration // default 1h
	Clock           clock.Clock
}

type authSession struct {
	token     string
	expiresAt time.Time
}

// Manager validates credentials and tracks the resulting sessions.
type Manager struct {
	cfg          Config
	enabled      map[Method]bool
	passwordHash []byte

	mu       sync.Mutex
	sessions map[string]*authSession
}

// New creates a Manager from cfg. When Basic auth is enabled, cfg.Password
// is hashed once here with bcrypt; the plaintext is never retained.
func New(cfg Config) *Manager {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	enabled := make(map[Method]bool, len(cfg.Methods))
	for _, m := range cfg.Methods {
		enabled[m] = true
	}

	mgr := &Manager{cfg: cfg, enabled: enabled, sessions: make(map[string]*authSession)}
	if enabled[MethodBasic] && cfg.Password != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost); err == nil {
			mgr.passwordHash = hash
		}
	}
	return mgr
}

// AuthenticateBasic checks an HTTP Basic Authorization header. The username
// is compared in constant time; the password is checked against the bcrypt
// hash computed at construction.
func (m *Manager) AuthenticateBasic(r *http.Request) (string, error) {
	if !m.enabled[MethodBasic] {
		return "", ErrUnsupportedMethod
	}
	user, pass, ok := r.BasicAuth()
	if !ok || !constantTimeEqual(user, m.cfg.Username) {
		return "", ErrInvalidCredentials
	}
	if m.passwordHash == nil || bcrypt.CompareHashAndPassword(m.passwordHash, []byte(pass)) != nil {
		return "", ErrInvalidCredentials
	}
	return m.issue(user)
}

// AuthenticateAPIKey checks the X-API-Key header or api_key query parameter.
func (m *Manager) AuthenticateAPIKey(r *http.Request) (string, error) {
	if !m.enabled[MethodAPIKey] {
		return "", ErrUnsupportedMethod
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	if key == "" || !constantTimeEqual(key, m.cfg.APIKey) {
		return "", ErrInvalidCredentials
	}
	return m.issue("apikey")
}

// ValidateToken checks an existing session token issued by a prior
// authentication. It returns true iff the session exists and has not
// expired.
func (m *Manager) ValidateToken(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return false
	}
	return m.cfg.Clock.Now().Before(s.expiresAt)
}

// AuthenticateICloud accepts an opaque (deviceID, identityToken) pair that
// has already been validated externally, and produces a session for it.
func (m *Manager) AuthenticateICloud(deviceID, identityToken string) (string, error) {
	if !m.enabled[MethodICloud] {
		return "", ErrUnsupportedMethod
	}
	if deviceID == "" || identityToken == "" {
		return "", ErrInvalidCredentials
	}
	return m.issue(deviceID)
}

func (m *Manager) issue(principal string) (string, error) {
	token := uuid.NewString()
	m.mu.Lock()
	m.sessions[token] = &authSession{
		token:     token,
		expiresAt: m.cfg.Clock.Now().Add(m.cfg.SessionDuration),
	}
	m.mu.Unlock()
	return token, nil
}

// Enabled reports whether method is in the configured method set.
func (m *Manager) Enabled(method Method) bool {
	return m.enabled[method]
}

// constantTimeEqual compares two strings in time proportional to their
// combined length, independent of where they first differ.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison against a same-length buffer so callers
		// can't distinguish "wrong length" from "wrong content" by timing.
		subtle.ConstantTimeCompare([]byte(a), []byte(strings.Repeat("\x00", len(a))))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
