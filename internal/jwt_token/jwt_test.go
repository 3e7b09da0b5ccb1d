package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "dictkeys/pkg/domain-errors"
)

const (
	testKey      = "test-signing-key"
	testIssuer   = "dictkeys"
	testAudience = "dictkeys-api"
)

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, Claims{RegisteredClaims: claims}).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestRoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc := NewJWTService(testKey, testIssuer, testAudience, WithClock(func() time.Time { return now }))
	owner := uuid.New()

	raw, err := svc.GenerateAccessToken(owner, 15*time.Minute)
	require.NoError(t, err)

	claims, err := svc.ParseClaims(raw)
	require.NoError(t, err)
	assert.Equal(t, owner.String(), claims.Subject)
	assert.Equal(t, now.Add(15*time.Minute), claims.ExpiresAt.Time.UTC())
	assert.NotEmpty(t, claims.ID)

	got, err := svc.ValidateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestValidateTokenRejects(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc := NewJWTService(testKey, testIssuer, testAudience, WithClock(func() time.Time { return now }))
	valid := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	with := func(edit func(*jwt.RegisteredClaims)) jwt.RegisteredClaims {
		c := valid
		edit(&c)
		return c
	}

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		message string
	}{
		{
			name:    "garbage",
			token:   func(*testing.T) string { return "not-a-jwt" },
			message: "invalid token",
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				return signed(t, jwt.SigningMethodHS256, []byte(testKey), with(func(c *jwt.RegisteredClaims) {
					c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Second))
				}))
			},
			message: "token has expired",
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				return signed(t, jwt.SigningMethodHS256, []byte(testKey), with(func(c *jwt.RegisteredClaims) {
					c.ExpiresAt = nil
				}))
			},
			message: "invalid token",
		},
		{
			name: "other audience",
			token: func(t *testing.T) string {
				return signed(t, jwt.SigningMethodHS256, []byte(testKey), with(func(c *jwt.RegisteredClaims) {
					c.Audience = jwt.ClaimStrings{"billing"}
				}))
			},
			message: "token not issued for this service",
		},
		{
			name: "other issuer",
			token: func(t *testing.T) string {
				return signed(t, jwt.SigningMethodHS256, []byte(testKey), with(func(c *jwt.RegisteredClaims) {
					c.Issuer = "someone-else"
				}))
			},
			message: "token not issued for this service",
		},
		{
			name: "wrong key",
			token: func(t *testing.T) string {
				return signed(t, jwt.SigningMethodHS256, []byte("other-key"), valid)
			},
			message: "invalid token",
		},
		{
			name: "HS512 not accepted",
			token: func(t *testing.T) string {
				return signed(t, jwt.SigningMethodHS512, []byte(testKey), valid)
			},
			message: "invalid token",
		},
		{
			name: "subject is not a uuid",
			token: func(t *testing.T) string {
				return signed(t, jwt.SigningMethodHS256, []byte(testKey), with(func(c *jwt.RegisteredClaims) {
					c.Subject = "alice"
				}))
			},
			message: "invalid token subject",
		},
		{
			name: "nil subject",
			token: func(t *testing.T) string {
				return signed(t, jwt.SigningMethodHS256, []byte(testKey), with(func(c *jwt.RegisteredClaims) {
					c.Subject = uuid.Nil.String()
				}))
			},
			message: "invalid token subject",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ValidateToken(tt.token(t))
			require.Error(t, err)
			assert.Equal(t, uuid.Nil, got)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
			assert.Equal(t, tt.message, dErrors.MessageOf(err))
		})
	}
}

func TestLeewayAcceptsSkew(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	issuer := NewJWTService(testKey, testIssuer, testAudience, WithClock(func() time.Time { return now }))
	raw, err := issuer.GenerateAccessToken(uuid.New(), time.Minute)
	require.NoError(t, err)

	later := func() time.Time { return now.Add(90 * time.Second) }
	strict := NewJWTService(testKey, testIssuer, testAudience, WithClock(later))
	_, err = strict.ValidateToken(raw)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))

	lenient := NewJWTService(testKey, testIssuer, testAudience, WithClock(later), WithLeeway(time.Minute))
	_, err = lenient.ValidateToken(raw)
	assert.NoError(t, err)
}
