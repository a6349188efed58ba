// Package common defines sentinel errors shared by the repositories, the
// authentication services and the bootstrap code. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// ErrUserNotFound is returned for an unknown user, wrong credentials and
	// a rejected refresh token alike, so callers cannot tell them apart.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEmail rejects a signup for an email that is already registered.
	ErrDuplicateEmail = errors.New("cannot register with this email")

	// ErrPersistence means the store could not complete the write; the caller
	// may retry.
	ErrPersistence = errors.New("persistence failure")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")

	// ErrConfiguration is a startup-class error (missing signing secret etc.).
	ErrConfiguration = errors.New("configuration error")
)
