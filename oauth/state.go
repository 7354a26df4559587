package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultStateTTL bounds how long a user may take to finish signing in.
const DefaultStateTTL = 300 * time.Second

var ErrInvalidState = errors.New("invalid or expired authorization state")

type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// StateSigner issues and checks the OAuth state parameter as a short-lived
// HS256 token bound to one provider.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *StateSigner) Issue(providerID string) (string, error) {
	now := s.now()
	claims := stateClaims{
		Provider: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify returns the provider the state was issued for.
func (s *StateSigner) Verify(state string) (string, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Provider == "" {
		return "", ErrInvalidState
	}
	return claims.Provider, nil
}
