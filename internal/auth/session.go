// Package auth holds the client-side session issued by the identity provider.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession indicates an operation that requires authentication was
// attempted without a valid session.
var ErrNoSession = errors.New("no authenticated session")

// Claims are the token claims this client cares about.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Session wraps the bearer token used to authorize backend and gateway
// requests. The token is issued and signed by the identity provider; the
// client only decodes claims to learn who it is acting for and when the
// session lapses. Signature verification stays server-side.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// FromToken builds a session from a bearer token, decoding its claims.
func FromToken(token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Opaque (non-JWT) tokens are still usable for authorization; the
		// backend decides their validity.
		return &Session{Token: token}, nil
	}

	s := &Session{
		Token:  token,
		UserID: claims.Subject,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Valid reports whether the session can still authorize requests.
func (s *Session) Valid() bool {
	if s == nil || s.Token == "" {
		return false
	}
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return false
	}
	return true
}
