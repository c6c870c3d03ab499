package user

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrExists      = errors.New("user already exists")
	ErrUnavailable = errors.New("credential store unavailable")
)

// Identity is the authenticated subject handed to the rest of the system.
type Identity struct {
	SubjectID   string
	DisplayName string
}

type Credential struct {
	Identity
	PasswordHash string
}

// Store looks up credentials by username or email and registers new users.
// Create returns ErrExists when the username or email is taken.
type Store interface {
	FindByLoginIdentifier(ctx context.Context, identifier string) (*Credential, error)
	Create(ctx context.Context, username, email, passwordHash string) (Identity, error)
}
