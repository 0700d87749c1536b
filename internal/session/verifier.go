// Package session is the boundary to the identity provider. It verifies the
// provider's signed tokens, tracks which user each device is signed in as,
// and emits a transition whenever that changes.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/playperu/storyline/internal/storyline"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenInvalid   = errors.New("token invalid")
)

// Claims are the token claims; the subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Verifier checks HS256 tokens issued by the identity provider.
type Verifier struct {
	secret []byte
	issuer string
	logger *slog.Logger
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string, logger *slog.Logger) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger.With("component", "verifier"),
	}, nil
}

// Verify returns the user id carried by token. Every failure is
// NotAuthenticated and wraps one of the ErrToken errors.
func (v *Verifier) Verify(token string) (uuid.UUID, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		v.logger.Debug("token rejected", "token", snippet(token), "error", err)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return uuid.Nil, unauthenticated(ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return uuid.Nil, unauthenticated(ErrTokenMalformed)
		default:
			return uuid.Nil, unauthenticated(fmt.Errorf("%w: %v", ErrTokenInvalid, err))
		}
	}
	if !parsed.Valid {
		return uuid.Nil, unauthenticated(ErrTokenInvalid)
	}

	user, err := uuid.Parse(claims.Subject)
	if err != nil || user == uuid.Nil {
		return uuid.Nil, unauthenticated(fmt.Errorf("%w: subject is not a user id", ErrTokenInvalid))
	}
	return user, nil
}

// Issue signs a token for user. It stands in for the identity provider in
// development and tests.
func (v *Verifier) Issue(user uuid.UUID, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return s, nil
}

func unauthenticated(err error) error {
	return storyline.Wrap(storyline.CodeNotAuthenticated, "verifying token", err)
}

func snippet(token string) string {
	const limit = 15
	if len(token) > limit {
		return token[:limit] + "..."
	}
	return token
}
