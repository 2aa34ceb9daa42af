package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestVerify_ValidToken(t *testing.T) {
	raw := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	sub, err := Verify(raw, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-7", sub)
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing token", ""},
		{"garbage", "not.a.token"},
		{
			"wrong secret",
			signToken(t, "other-secret", jwt.MapClaims{"sub": "user-7"}),
		},
		{
			"expired",
			signToken(t, testSecret, jwt.MapClaims{
				"sub": "user-7",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			"no subject",
			signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(tt.raw, testSecret)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerify_RejectsUnsignedAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-7"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Verify(raw, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
