package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/AntonTsoy/session-service/internal/user"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// MaxClockSkew is how far in the future iat may lie, for replicas whose
	// clocks run behind the issuer's. Expiry is checked without leeway.
	MaxClockSkew = 30 * time.Second
)

var signingMethod = jwt.SigningMethodHS512

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type claims struct {
	Name  string `json:"name,omitempty"`
	Class Class  `json:"cls"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access and refresh tokens. Each class has its own
// secret, so a token of one class never verifies as the other.
type Codec struct {
	cfg Config
	now func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both signing secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token: TTLs must be positive")
	}

	c := &Codec{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) TTL(class Class) time.Duration {
	if class == Refresh {
		return c.cfg.RefreshTTL
	}
	return c.cfg.AccessTTL
}

func (c *Codec) secret(class Class) []byte {
	if class == Refresh {
		return c.cfg.RefreshSecret
	}
	return c.cfg.AccessSecret
}

func (c *Codec) Issue(identity user.Identity, class Class) (Token, error) {
	if !class.valid() {
		return Token{}, fmt.Errorf("token: unknown class %q", class)
	}
	if identity.SubjectID == "" {
		return Token{}, errors.New("token: empty subject")
	}

	issuedAt := c.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(c.TTL(class))

	jwtToken := jwt.NewWithClaims(signingMethod, claims{
		Name:  identity.DisplayName,
		Class: class,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.SubjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	value, err := jwtToken.SignedString(c.secret(class))
	if err != nil {
		return Token{}, fmt.Errorf("token: sign: %w", err)
	}

	return Token{
		Value:     value,
		Class:     class,
		Identity:  identity,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Decode verifies value as a token of the expected class and returns its subject.
func (c *Codec) Decode(value string, expected Class) (user.Identity, error) {
	// The class is read before verification: a token of the other class is
	// signed with the other secret and would otherwise look like forgery.
	var unverified claims
	if _, _, err := jwt.NewParser().ParseUnverified(value, &unverified); err != nil {
		return user.Identity{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !unverified.Class.valid() {
		return user.Identity{}, fmt.Errorf("%w: unknown class %q", ErrMalformed, unverified.Class)
	}
	if unverified.Class != expected {
		return user.Identity{}, fmt.Errorf("%w: got %s, want %s", ErrClassMismatch, unverified.Class, expected)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	var verified claims
	_, err := parser.ParseWithClaims(value, &verified, func(*jwt.Token) (any, error) {
		return c.secret(expected), nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return user.Identity{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return user.Identity{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return user.Identity{}, fmt.Errorf("%w: %v", ErrNotYetValid, err)
	default:
		return user.Identity{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if verified.IssuedAt == nil {
		return user.Identity{}, fmt.Errorf("%w: missing iat", ErrMalformed)
	}
	if verified.IssuedAt.Time.After(c.now().Add(MaxClockSkew)) {
		return user.Identity{}, fmt.Errorf("%w: issued at %s", ErrNotYetValid, verified.IssuedAt.Time.UTC().Format(time.RFC3339))
	}

	if verified.Subject == "" {
		return user.Identity{}, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return user.Identity{SubjectID: verified.Subject, DisplayName: verified.Name}, nil
}
