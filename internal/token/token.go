package token

import (
	"time"

	"github.com/AntonTsoy/session-service/internal/user"
)

type Class string

const (
	Access  Class = "access"
	Refresh Class = "refresh"
)

func (c Class) valid() bool {
	return c == Access || c == Refresh
}

// Token is an issued, signed credential. Value is the opaque string handed to clients.
type Token struct {
	Value     string
	Class     Class
	Identity  user.Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TTL is the lifetime of the token, as carried in its claims.
func (t Token) TTL() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}
