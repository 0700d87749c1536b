package session_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/storyline/internal/session"
	"github.com/playperu/storyline/internal/storyline"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newVerifier(t *testing.T) *session.Verifier {
	t.Helper()
	v, err := session.NewVerifier("test-secret", "storyline-test", discard)
	require.NoError(t, err)
	return v
}

func TestVerifyIssuedToken(t *testing.T) {
	v := newVerifier(t)
	user := uuid.New()

	token, err := v.Issue(user, time.Hour, time.Now())
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user, got)
}

func TestVerifyRejects(t *testing.T) {
	v := newVerifier(t)
	user := uuid.New()

	expired, err := v.Issue(user, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	other, err := session.NewVerifier("other-secret", "storyline-test", discard)
	require.NoError(t, err)
	forged, err := other.Issue(user, time.Hour, time.Now())
	require.NoError(t, err)

	wrongIssuer, err := session.NewVerifier("test-secret", "elsewhere", discard)
	require.NoError(t, err)
	foreign, err := wrongIssuer.Issue(user, time.Hour, time.Now())
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "player-one",
		Issuer:    "storyline-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: user.String(),
		Issuer:  "storyline-test",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "expired", token: expired, want: session.ErrTokenExpired},
		{name: "garbage", token: "not-a-token", want: session.ErrTokenMalformed},
		{name: "wrong secret", token: forged, want: session.ErrTokenInvalid},
		{name: "wrong issuer", token: foreign, want: session.ErrTokenInvalid},
		{name: "subject not uuid", token: noSubject, want: session.ErrTokenInvalid},
		{name: "alg none", token: none, want: session.ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, storyline.ErrNotAuthenticated)
		})
	}
}

func TestNewVerifierNeedsSecret(t *testing.T) {
	_, err := session.NewVerifier("", "", discard)
	assert.Error(t, err)
}
