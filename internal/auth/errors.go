package auth

import "errors"

// Error kinds from the auth error taxonomy.
var (
	ErrUnsupportedMethod  = errors.New("auth: method not enabled")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
