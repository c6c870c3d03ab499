package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AntonTsoy/session-service/internal/metrics"
	"github.com/AntonTsoy/session-service/internal/token"
	"github.com/AntonTsoy/session-service/internal/user"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	identityKey = "auth.identity"
)

// Guard checks access tokens. It is stateless: a revoked refresh session does
// not invalidate access tokens that were already issued.
type Guard struct {
	codec   *token.Codec
	metrics *metrics.Metrics
}

func NewGuard(codec *token.Codec, m *metrics.Metrics) *Guard {
	return &Guard{codec: codec, metrics: m}
}

func (g *Guard) Authenticate(presented string) (user.Identity, error) {
	if presented == "" {
		g.metrics.GuardDecision("unauthenticated")
		return user.Identity{}, ErrUnauthenticated
	}

	identity, err := g.codec.Decode(presented, token.Access)
	if err != nil {
		g.metrics.GuardDecision("forbidden")
		return user.Identity{}, fmt.Errorf("%w: %w", ErrForbidden, err)
	}

	g.metrics.GuardDecision("allowed")
	return identity, nil
}

// Middleware rejects requests without a valid access token and stores the
// caller's identity in the gin context.
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := g.Authenticate(accessTokenFrom(c))
		if err != nil {
			status := http.StatusForbidden
			if errors.Is(err, ErrUnauthenticated) {
				status = http.StatusUnauthorized
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(status, gin.H{"error": errorMessage(err)})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(c *gin.Context) (user.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return user.Identity{}, false
	}
	identity, ok := v.(user.Identity)
	return identity, ok
}

// accessTokenFrom prefers the cookie over the Authorization header.
func accessTokenFrom(c *gin.Context) string {
	if v, err := c.Cookie(AccessCookie); err == nil && v != "" {
		return v
	}
	return bearerToken(c)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}
