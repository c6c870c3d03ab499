package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AntonTsoy/session-service/internal/email"
	"github.com/AntonTsoy/session-service/internal/metrics"
	"github.com/AntonTsoy/session-service/internal/token"
	"github.com/AntonTsoy/session-service/internal/user"
)

const (
	opLogin     = "login"
	opRegister  = "register"
	opRefresh   = "refresh"
	opLogout    = "logout"
	opRevokeAll = "revoke_all"

	defaultStorageTimeout = 3 * time.Second
)

var errRevoked = fmt.Errorf("%w: %w", ErrInvalidRefreshToken, ErrSessionRevoked)

// Session is a freshly issued token pair.
type Session struct {
	Identity user.Identity
	Access   token.Token
	Refresh  token.Token
}

// Controller runs login, refresh and logout on top of the codec and the registry.
// A subject has at most one live refresh session; every refresh rotates it.
type Controller struct {
	users    user.Store
	verifier user.PasswordVerifier
	codec    *token.Codec
	registry Registry
	notifier email.Notifier
	metrics  *metrics.Metrics
	log      zerolog.Logger
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Controller)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log.With().Str("component", "session").Logger() }
}

func WithNotifier(n email.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithStorageTimeout bounds every credential store and registry call.
func WithStorageTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(users user.Store, verifier user.PasswordVerifier, codec *token.Codec, registry Registry, opts ...Option) *Controller {
	c := &Controller{
		users:    users,
		verifier: verifier,
		codec:    codec,
		registry: registry,
		log:      zerolog.Nop(),
		timeout:  defaultStorageTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login checks the credentials and starts a new session, superseding any
// session the subject already had. Unknown identifiers and wrong passwords
// both yield ErrInvalidCredentials.
func (c *Controller) Login(ctx context.Context, identifier, password string) (sess *Session, err error) {
	defer func() { c.observe(opLogin, err) }()

	cred, err := c.findCredential(ctx, identifier)
	if errors.Is(err, user.ErrNotFound) {
		c.verifier.Verify(password, user.DummyHash())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !c.verifier.Verify(password, cred.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	sess, superseded, err := c.start(ctx, cred.Identity)
	if err != nil {
		return nil, err
	}
	if superseded > 0 {
		c.metrics.Superseded(superseded)
		if c.notifier != nil {
			go c.notifier.SessionSuperseded(context.WithoutCancel(ctx), cred.Identity)
		}
	}

	c.log.Info().Str("subject_id", cred.SubjectID).Int("superseded", superseded).Msg("login")
	return sess, nil
}

// Register creates a user and starts their first session. A taken username
// or email yields ErrUserExists.
func (c *Controller) Register(ctx context.Context, username, email, password string) (sess *Session, err error) {
	defer func() { c.observe(opRegister, err) }()

	hash, err := user.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	sctx, cancel := c.storageCtx(ctx)
	identity, err := c.users.Create(sctx, username, email, hash)
	cancel()
	if errors.Is(err, user.ErrExists) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	sess, _, err = c.start(ctx, identity)
	if err != nil {
		return nil, err
	}

	c.log.Info().Str("subject_id", identity.SubjectID).Msg("register")
	return sess, nil
}

// Refresh exchanges a live refresh token for a new pair. The presented token
// is consumed: using it again fails with ErrInvalidRefreshToken.
func (c *Controller) Refresh(ctx context.Context, presented string) (sess *Session, err error) {
	defer func() { c.observe(opRefresh, err) }()

	identity, err := c.codec.Decode(presented, token.Refresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}

	sctx, cancel := c.storageCtx(ctx)
	defer cancel()

	rec, err := c.registry.FindByValue(sctx, presented, c.now())
	if errors.Is(err, ErrNotFound) {
		return nil, errRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if rec.SubjectID != identity.SubjectID {
		return nil, errRevoked
	}

	sess, err = c.issue(identity)
	if err != nil {
		return nil, err
	}

	err = c.registry.Rotate(sctx, presented, recordOf(sess.Refresh))
	if errors.Is(err, ErrNotFound) {
		// Lost a race against a concurrent refresh or logout of the same token.
		return nil, errRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	c.log.Info().Str("subject_id", identity.SubjectID).Msg("refresh")
	return sess, nil
}

// Logout revokes the refresh session on a best-effort basis. It never fails
// from the caller's point of view.
func (c *Controller) Logout(ctx context.Context, presented string) {
	if presented == "" {
		c.observe(opLogout, nil)
		return
	}

	sctx, cancel := c.storageCtx(ctx)
	defer cancel()

	err := c.registry.DeleteByValue(sctx, presented)
	if err != nil {
		c.log.Warn().Err(err).Msg("logout: refresh session not revoked")
	}
	c.observe(opLogout, err)
}

// RevokeAll drops the subject's refresh session wherever it was issued.
func (c *Controller) RevokeAll(ctx context.Context, subjectID string) (n int, err error) {
	defer func() { c.observe(opRevokeAll, err) }()

	sctx, cancel := c.storageCtx(ctx)
	defer cancel()

	n, err = c.registry.DeleteBySubject(sctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	c.log.Info().Str("subject_id", subjectID).Int("revoked", n).Msg("revoke all")
	return n, nil
}

// start issues a pair and installs its refresh token as the subject's only
// session. It reports how many live sessions were superseded.
func (c *Controller) start(ctx context.Context, identity user.Identity) (*Session, int, error) {
	sess, err := c.issue(identity)
	if err != nil {
		return nil, 0, err
	}

	sctx, cancel := c.storageCtx(ctx)
	defer cancel()

	superseded, err := c.registry.Replace(sctx, recordOf(sess.Refresh))
	if err != nil {
		return nil, 0, fmt.Errorf("replace session: %w", err)
	}
	return sess, superseded, nil
}

func (c *Controller) findCredential(ctx context.Context, identifier string) (*user.Credential, error) {
	if identifier == "" {
		return nil, user.ErrNotFound
	}
	sctx, cancel := c.storageCtx(ctx)
	defer cancel()
	return c.users.FindByLoginIdentifier(sctx, identifier)
}

func (c *Controller) issue(identity user.Identity) (*Session, error) {
	access, err := c.codec.Issue(identity, token.Access)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := c.codec.Issue(identity, token.Refresh)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &Session{Identity: identity, Access: access, Refresh: refresh}, nil
}

func (c *Controller) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Controller) observe(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidCredentials):
		outcome = "invalid_credentials"
	case errors.Is(err, ErrUserExists):
		outcome = "user_exists"
	case errors.Is(err, ErrInvalidRefreshToken):
		outcome = "invalid_refresh_token"
	case errors.Is(err, ErrStorageUnavailable):
		outcome = "unavailable"
	default:
		outcome = "error"
	}
	c.metrics.SessionOp(op, outcome)

	if err != nil {
		c.log.Debug().Str("operation", op).Err(err).Msg("rejected")
	}
}

func recordOf(refresh token.Token) Record {
	return Record{
		TokenValue: refresh.Value,
		SubjectID:  refresh.Identity.SubjectID,
		CreatedAt:  refresh.IssuedAt,
		ExpiresAt:  refresh.ExpiresAt,
	}
}
