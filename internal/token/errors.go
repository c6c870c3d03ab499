package token

import "errors"

var (
	ErrMalformed        = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not valid yet")
	ErrClassMismatch    = errors.New("token class mismatch")
)
