package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes. Every error returned by Client wraps exactly one of
// ErrNetwork, ErrUnexpectedStatus, ErrMalformedPayload or ErrNoToken;
// 401 and 403 responses additionally match ErrUnauthorized.
var (
	ErrNetwork          = errors.New("transport: network failure")
	ErrUnexpectedStatus = errors.New("transport: unexpected response status")
	ErrUnauthorized     = errors.New("transport: unauthorized")
	ErrMalformedPayload = errors.New("transport: malformed payload")
	ErrNoToken          = errors.New("transport: no bearer token")
	ErrRejected         = errors.New("transport: request rejected by server")
	ErrInvalidRequest   = errors.New("transport: invalid request")
)

// StatusError carries a non-2xx response.
type StatusError struct {
	Op   string
	Code int
	// Body is a sanitised prefix of the response body.
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Op, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is makes StatusError match ErrUnexpectedStatus, and ErrUnauthorized for
// 401 and 403.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnexpectedStatus:
		return true
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	}
	return false
}

// IsAuthFailure reports whether err means the session is no longer
// authenticated and the caller should tear it down.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoToken)
}

// StatusCode extracts the HTTP status from err, 0 if there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
