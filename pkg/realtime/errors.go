package realtime

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted   = errors.New("realtime: channel already started")
	ErrDial             = errors.New("realtime: dial failed")
	ErrHandshake        = errors.New("realtime: handshake failed")
	ErrUnauthorized     = errors.New("realtime: unauthorized")
	ErrNotConnected     = errors.New("realtime: not connected")
	ErrConnectionLost   = errors.New("realtime: connection lost")
	ErrClosedByServer   = errors.New("realtime: closed by server")
	ErrStopped          = errors.New("realtime: channel stopped")
	ErrMalformedFrame   = errors.New("realtime: malformed frame")
	ErrMalformedEvent   = errors.New("realtime: malformed event")
	ErrInvocationFailed = errors.New("realtime: invocation failed")
)

// TransitionError reports a trigger that has no transition from the
// current state.
type TransitionError struct {
	State   State
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("realtime: no transition from state %q on %q", e.State, e.Trigger)
}

// CloseError is returned when the server sends a close frame.
type CloseError struct {
	Reason         string
	AllowReconnect bool
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return ErrClosedByServer.Error()
	}
	return fmt.Sprintf("%s: %s", ErrClosedByServer, e.Reason)
}

func (e *CloseError) Is(target error) bool {
	return target == ErrClosedByServer
}

// IsAuthFailure reports whether err means the token was rejected.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
