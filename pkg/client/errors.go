package client

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the server rejects the bearer credential.
// Callers must treat it as fatal for the session and force a logout; it is
// never retried.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUserExists is returned by Register when the username is taken.
var ErrUserExists = errors.New("user already exists")

// ErrInvalidCredentials is returned by Login on a bad username/password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ValidationError is a request the server rejected, carrying the server's
// detail text when it provided one.
type ValidationError struct {
	Status int
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("request rejected (%d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("request rejected (%d)", e.Status)
}

// NetworkError is a transport-level failure: the request produced no
// response at all. The operation is abandoned, not retried.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
