package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)

	sessionID, token, err := m.GenerateCheckoutToken(42)
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, int32(42), claims.VehicleID)
	assert.Equal(t, TokenTypeCheckout, claims.Type)
}

func TestTokenManager_Expired(t *testing.T) {
	m := NewTokenManager(testSecret, time.Minute).(*tokenManager)
	issued := time.Now().Add(-2 * time.Hour)
	m.now = func() time.Time { return issued }
	_, token, err := m.GenerateCheckoutToken(42)
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	_, token, err := NewTokenManager(testSecret, time.Hour).GenerateCheckoutToken(42)
	require.NoError(t, err)

	_, err = NewTokenManager("another-secret-another-secret-xx", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_WrongType(t *testing.T) {
	claims := CheckoutClaims{
		SessionID: "sess",
		Type:      "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Audience:  jwt.ClaimStrings{"checkout"},
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestTokenManager_Garbage(t *testing.T) {
	_, err := NewTokenManager(testSecret, time.Hour).ValidateToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
