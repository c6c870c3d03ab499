package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AntonTsoy/session-service/internal/session"
)

func (h *AuthHandler) setSessionCookies(c *gin.Context, sess *session.Session) {
	h.setCookie(c, AccessCookie, sess.Access.Value, sess.Access.TTL())
	h.setCookie(c, RefreshCookie, sess.Refresh.Value, sess.Refresh.TTL())
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	h.setCookie(c, AccessCookie, "", -time.Second)
	h.setCookie(c, RefreshCookie, "", -time.Second)
}

func (h *AuthHandler) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, int(ttl/time.Second), "/", "", h.secureCookies, true)
}
