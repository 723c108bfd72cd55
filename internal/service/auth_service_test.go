package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bp-reports-api/internal/models"
	appErrors "github.com/noah-isme/bp-reports-api/pkg/errors"
)

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{RegisteredClaims: claims})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateTokenExtractsUserID(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "sunbird"})
	raw := signToken(t, "secret", jwt.RegisteredClaims{
		Subject:   "f:realm:user-42",
		Issuer:    "sunbird",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	claims, err := svc.ValidateToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID())
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "sunbird"})

	cases := map[string]string{
		"wrong secret": signToken(t, "other", jwt.RegisteredClaims{Subject: "u1", Issuer: "sunbird"}),
		"expired": signToken(t, "secret", jwt.RegisteredClaims{
			Subject: "u1", Issuer: "sunbird", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}),
		"wrong issuer":    signToken(t, "secret", jwt.RegisteredClaims{Subject: "u1", Issuer: "elsewhere"}),
		"missing subject": signToken(t, "secret", jwt.RegisteredClaims{Issuer: "sunbird"}),
		"garbage":         "not-a-token",
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}
