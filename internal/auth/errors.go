package auth

import "errors"

var (
	// ErrUnauthenticated means no access token was presented.
	ErrUnauthenticated = errors.New("access token is required")

	// ErrForbidden wraps the reason a presented access token was rejected.
	ErrForbidden = errors.New("invalid or expired token")
)
