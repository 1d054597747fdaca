package session

import "errors"

// Error kinds from the session error taxonomy.
var (
	ErrStreamInUse  = errors.New("session: stream in use")
	ErrInvalidToken = errors.New("session: invalid or expired token")
)
