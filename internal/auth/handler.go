package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/AntonTsoy/session-service/internal/session"
	"github.com/AntonTsoy/session-service/internal/user"
)

type AuthHandler struct {
	sessions      *session.Controller
	secureCookies bool
	log           zerolog.Logger
}

func NewAuthHandler(sessions *session.Controller, secureCookies bool, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions:      sessions,
		secureCookies: secureCookies,
		log:           log.With().Str("component", "auth").Logger(),
	}
}

// Routes mounts the auth routes. Logout, logout-all and me require a valid
// access token.
func (h *AuthHandler) Routes(r gin.IRouter, guard *Guard) {
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/refresh-token", h.RefreshToken)

	protected := r.Group("", guard.Middleware())
	protected.POST("/logout", h.Logout)
	protected.POST("/logout-all", h.LogoutAll)
	protected.GET("/me", h.Me)
}

type registerRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,max=72"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sess, err := h.sessions.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.setSessionCookies(c, sess)
	c.JSON(http.StatusCreated, gin.H{
		"user":   toUserResponse(sess.Identity),
		"tokens": toTokensResponse(sess),
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username or email is required"})
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), identifier, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.setSessionCookies(c, sess)
	c.JSON(http.StatusOK, gin.H{
		"user":   toUserResponse(sess.Identity),
		"tokens": toTokensResponse(sess),
	})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	presented, ok := h.refreshTokenFrom(c, true)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if presented == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token is required"})
		return
	}

	sess, err := h.sessions.Refresh(c.Request.Context(), presented)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.setSessionCookies(c, sess)
	c.JSON(http.StatusOK, gin.H{"tokens": toTokensResponse(sess)})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	presented, ok := h.refreshTokenFrom(c, false)
	if ok {
		h.sessions.Logout(c.Request.Context(), presented)
	} else {
		h.log.Debug().Msg("logout: unreadable body, refresh session not revoked")
	}

	h.clearSessionCookies(c)
	if identity, ok := IdentityFrom(c); ok {
		h.log.Info().Str("subject_id", identity.SubjectID).Msg("logged out")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		h.writeError(c, ErrUnauthenticated)
		return
	}

	n, err := h.sessions.RevokeAll(c.Request.Context(), identity.SubjectID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out from all sessions",
		"revoked": n,
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := IdentityFrom(c)
	if !ok {
		h.writeError(c, ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(identity)})
}

// refreshTokenFrom reads the refresh token from the cookie, then the JSON body,
// then, when allowed, the Authorization header. ok is false only for an
// unreadable body.
func (h *AuthHandler) refreshTokenFrom(c *gin.Context, allowBearer bool) (string, bool) {
	if v, err := c.Cookie(RefreshCookie); err == nil && v != "" {
		return v, true
	}
	if c.Request.ContentLength != 0 && c.Request.Body != nil {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return "", false
		}
		if req.RefreshToken != "" {
			return req.RefreshToken, true
		}
	}
	if allowBearer {
		return bearerToken(c), true
	}
	return "", true
}

func (h *AuthHandler) writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	} else {
		h.log.Debug().Err(err).Str("path", c.FullPath()).Msg("request rejected")
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": errorMessage(err)})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrUserExists):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, session.ErrInvalidRefreshToken),
		errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, session.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage never exposes the wrapped cause.
func errorMessage(err error) string {
	for _, known := range []error{
		session.ErrUserExists,
		session.ErrInvalidCredentials,
		session.ErrInvalidRefreshToken,
		ErrUnauthenticated,
		ErrForbidden,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(err, session.ErrStorageUnavailable) {
		return "service temporarily unavailable"
	}
	return "internal server error"
}

func toUserResponse(identity user.Identity) userResponse {
	return userResponse{ID: identity.SubjectID, Name: identity.DisplayName}
}

func toTokensResponse(sess *session.Session) tokensResponse {
	return tokensResponse{AccessToken: sess.Access.Value, RefreshToken: sess.Refresh.Value}
}
