package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonTsoy/session-service/internal/user"
)

var alice = user.Identity{SubjectID: "4b9f3a52-0b1e-4c1d-9d7e-2f3c8a6e5b10", DisplayName: "alice"}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCodec(t *testing.T) (*Codec, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	codec, err := NewCodec(Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	}, WithClock(clk.now))
	require.NoError(t, err)
	return codec, clk
}

func TestNewCodec_Validation(t *testing.T) {
	_, err := NewCodec(Config{AccessSecret: []byte("a")})
	assert.Error(t, err)

	_, err = NewCodec(Config{AccessSecret: []byte("same"), RefreshSecret: []byte("same")})
	assert.Error(t, err)

	_, err = NewCodec(Config{AccessSecret: []byte("a"), RefreshSecret: []byte("b"), AccessTTL: -time.Minute})
	assert.Error(t, err)

	codec, err := NewCodec(Config{AccessSecret: []byte("a"), RefreshSecret: []byte("b")})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, codec.TTL(Access))
	assert.Equal(t, 7*24*time.Hour, codec.TTL(Refresh))
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, _ := newTestCodec(t)

	for _, class := range []Class{Access, Refresh} {
		t.Run(string(class), func(t *testing.T) {
			tok, err := codec.Issue(alice, class)
			require.NoError(t, err)
			assert.Equal(t, class, tok.Class)
			assert.Equal(t, codec.TTL(class), tok.TTL())

			got, err := codec.Decode(tok.Value, class)
			require.NoError(t, err)
			assert.Equal(t, alice, got)
		})
	}
}

func TestCodec_IssueIsUniqueWithinOneSecond(t *testing.T) {
	codec, _ := newTestCodec(t)

	first, err := codec.Issue(alice, Refresh)
	require.NoError(t, err)
	second, err := codec.Issue(alice, Refresh)
	require.NoError(t, err)

	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
}

func TestCodec_Expired(t *testing.T) {
	codec, clk := newTestCodec(t)

	access, err := codec.Issue(alice, Access)
	require.NoError(t, err)
	refresh, err := codec.Issue(alice, Refresh)
	require.NoError(t, err)

	clk.t = clk.t.Add(16 * time.Minute)
	_, err = codec.Decode(access.Value, Access)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = codec.Decode(refresh.Value, Refresh)
	require.NoError(t, err)

	clk.t = clk.t.Add(7 * 24 * time.Hour)
	_, err = codec.Decode(refresh.Value, Refresh)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestCodec_ExpiresExactlyAtExpiry(t *testing.T) {
	codec, clk := newTestCodec(t)

	access, err := codec.Issue(alice, Access)
	require.NoError(t, err)

	clk.t = access.ExpiresAt
	_, err = codec.Decode(access.Value, Access)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestCodec_ClassMismatch(t *testing.T) {
	codec, _ := newTestCodec(t)

	access, err := codec.Issue(alice, Access)
	require.NoError(t, err)
	refresh, err := codec.Issue(alice, Refresh)
	require.NoError(t, err)

	_, err = codec.Decode(access.Value, Refresh)
	assert.ErrorIs(t, err, ErrClassMismatch)

	_, err = codec.Decode(refresh.Value, Access)
	assert.ErrorIs(t, err, ErrClassMismatch)
}

func TestCodec_ForgedClassClaim(t *testing.T) {
	codec, clk := newTestCodec(t)

	// An access token re-labelled as refresh, still signed with the access secret.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		Class: Refresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   alice.SubjectID,
			IssuedAt:  jwt.NewNumericDate(clk.t),
			ExpiresAt: jwt.NewNumericDate(clk.t.Add(time.Hour)),
		},
	})
	value, err := forged.SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = codec.Decode(value, Refresh)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestCodec_TamperedPayload(t *testing.T) {
	codec, _ := newTestCodec(t)

	tok, err := codec.Issue(alice, Access)
	require.NoError(t, err)

	other, err := codec.Issue(user.Identity{SubjectID: "mallory"}, Access)
	require.NoError(t, err)

	parts := strings.Split(tok.Value, ".")
	otherParts := strings.Split(other.Value, ".")
	spliced := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = codec.Decode(spliced, Access)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestCodec_WrongAlgorithm(t *testing.T) {
	codec, clk := newTestCodec(t)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		Class: Access,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   alice.SubjectID,
			IssuedAt:  jwt.NewNumericDate(clk.t),
			ExpiresAt: jwt.NewNumericDate(clk.t.Add(time.Hour)),
		},
	})
	value, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Decode(value, Access)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestCodec_Malformed(t *testing.T) {
	codec, clk := newTestCodec(t)

	for _, value := range []string{"", "garbage", "a.b.c", "eyJhbGciOiJIUzUxMiJ9.e30"} {
		_, err := codec.Decode(value, Access)
		assert.ErrorIs(t, err, ErrMalformed, "value %q", value)
	}

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		Class: Access,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(clk.t),
			ExpiresAt: jwt.NewNumericDate(clk.t.Add(time.Hour)),
		},
	})
	value, err := noSubject.SignedString([]byte("access-secret"))
	require.NoError(t, err)
	_, err = codec.Decode(value, Access)
	assert.ErrorIs(t, err, ErrMalformed)

	unknownClass := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		Class: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   alice.SubjectID,
			ExpiresAt: jwt.NewNumericDate(clk.t.Add(time.Hour)),
		},
	})
	value, err = unknownClass.SignedString([]byte("access-secret"))
	require.NoError(t, err)
	_, err = codec.Decode(value, Access)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCodec_IssueRejectsBadInput(t *testing.T) {
	codec, _ := newTestCodec(t)

	_, err := codec.Issue(user.Identity{}, Access)
	assert.Error(t, err)

	_, err = codec.Issue(alice, Class("id"))
	assert.Error(t, err)
}

func TestCodec_IssuerClockAhead(t *testing.T) {
	verifier, clk := newTestCodec(t)

	issueAt := func(offset time.Duration) string {
		issuer, err := NewCodec(Config{
			AccessSecret:  []byte("access-secret"),
			RefreshSecret: []byte("refresh-secret"),
		}, WithClock(func() time.Time { return clk.t.Add(offset) }))
		require.NoError(t, err)
		tok, err := issuer.Issue(alice, Access)
		require.NoError(t, err)
		return tok.Value
	}

	got, err := verifier.Decode(issueAt(10*time.Second), Access)
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	_, err = verifier.Decode(issueAt(5*time.Minute), Access)
	assert.ErrorIs(t, err, ErrNotYetValid)
	assert.NotErrorIs(t, err, ErrMalformed)
}

func TestCodec_NotBeforeInFuture(t *testing.T) {
	codec, clk := newTestCodec(t)

	early := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		Class: Access,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   alice.SubjectID,
			IssuedAt:  jwt.NewNumericDate(clk.t),
			NotBefore: jwt.NewNumericDate(clk.t.Add(time.Hour)),
			ExpiresAt: jwt.NewNumericDate(clk.t.Add(2 * time.Hour)),
		},
	})
	value, err := early.SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = codec.Decode(value, Access)
	assert.ErrorIs(t, err, ErrNotYetValid)
}
