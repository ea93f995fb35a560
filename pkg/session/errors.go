package session

import "errors"

var (
	// ErrUnauthenticated indicates no usable access token is available.
	ErrUnauthenticated = errors.New("session: unauthenticated")

	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("session: closed")

	// ErrInvalidConfig indicates the configuration cannot be used.
	ErrInvalidConfig = errors.New("session: invalid config")
)
