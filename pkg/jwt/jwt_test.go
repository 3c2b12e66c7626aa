package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccessSecret = "test-access-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testAccessSecret, service.accessSecret)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	token, err := service.GenerateAccessToken("operator")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Validate the generated token
	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Operator)
	assert.Equal(t, "operator", claims.Subject)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestGenerateAccessToken_UniqueIDs(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	first, err := service.GenerateAccessToken("operator")
	require.NoError(t, err)
	second, err := service.GenerateAccessToken("operator")
	require.NoError(t, err)

	a, err := service.ExtractClaims(first)
	require.NoError(t, err)
	b, err := service.ExtractClaims(second)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	other := NewService("another-secret", time.Hour)

	token, err := other.GenerateAccessToken("operator")
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	service := NewService(testAccessSecret, -time.Minute)

	token, err := service.GenerateAccessToken("operator")
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessToken_WrongSigningMethod(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	claims := Claims{
		Operator:  "operator",
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(tokenString)
	assert.Error(t, err)
}

func TestValidateAccessToken_WrongType(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	claims := Claims{
		Operator:  "operator",
		TokenType: TokenType("refresh"),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    Issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(tokenString)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token type")
}

func TestGetTokenExpiry(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	token, err := service.GenerateAccessToken("operator")
	require.NoError(t, err)

	expiry, err := service.GetTokenExpiry(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)

	_, err = service.GetTokenExpiry("not-a-token")
	assert.Error(t, err)
}
