package session

import "errors"

var (
	// ErrNotFound is returned by registries for absent and expired records alike.
	ErrNotFound = errors.New("refresh session not found")

	// ErrStorageUnavailable marks failures that are safe to retry.
	ErrStorageUnavailable = errors.New("session storage unavailable")

	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrUserExists          = errors.New("user already exists")
	ErrSessionRevoked      = errors.New("refresh session revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)
