// Package jwttoken verifies the bearer tokens presented to the key API.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "dictkeys/pkg/domain-errors"
)

// Claims carries the owner's user ID in the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService checks HS256 tokens from the identity provider. Minting is
// only used by tests and local tooling.
type JWTService struct {
	key      []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

type Option func(*JWTService)

// WithClock pins issuance and expiry checks, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLeeway tolerates clock skew on exp, nbf and iat.
func WithLeeway(d time.Duration) Option {
	return func(s *JWTService) {
		if d > 0 {
			s.leeway = d
		}
	}
}

func NewJWTService(signingKey, issuer, audience string, opts ...Option) *JWTService {
	s := &JWTService{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	return s
}

// GenerateAccessToken mints a token for userID valid for ttl.
func (s *JWTService) GenerateAccessToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	issued := s.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID.String(),
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *JWTService) ParseClaims(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
	case errors.Is(err, jwt.ErrTokenInvalidAudience), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token not issued for this service")
	default:
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
}

// ValidateToken returns the owner ID from the token subject.
func (s *JWTService) ValidateToken(raw string) (uuid.UUID, error) {
	claims, err := s.ParseClaims(raw)
	if err != nil {
		return uuid.Nil, err
	}
	owner, err := uuid.Parse(claims.Subject)
	if err != nil || owner == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token subject")
	}
	return owner, nil
}
