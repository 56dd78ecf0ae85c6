package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTService(ttl time.Duration) *JWTService {
	return NewJWTService(&JWTConfig{
		SecretKey:           []byte("test-secret"),
		AccessTokenDuration: ttl,
		Issuer:              "AgencyTrack-Backend",
	})
}

func TestJWT_RoundTrip(t *testing.T) {
	svc := testJWTService(15 * time.Minute)

	token, err := svc.GenerateAccessToken("agency-1", "owner@agency.example")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agency-1", claims.AgencyID)
	assert.Equal(t, "owner@agency.example", claims.Email)
	assert.Equal(t, "AgencyTrack-Backend", claims.Issuer)
}

func TestJWT_ExpiredToken(t *testing.T) {
	svc := testJWTService(-time.Minute)

	token, err := svc.GenerateAccessToken("agency-1", "owner@agency.example")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWT_WrongSecret(t *testing.T) {
	token, err := testJWTService(time.Minute).GenerateAccessToken("agency-1", "a@b.c")
	require.NoError(t, err)

	other := NewJWTService(&JWTConfig{
		SecretKey:           []byte("different-secret"),
		AccessTokenDuration: time.Minute,
		Issuer:              "AgencyTrack-Backend",
	})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc123", ExtractTokenFromBearer("Bearer abc123"))
	assert.Empty(t, ExtractTokenFromBearer("abc123"))
	assert.Empty(t, ExtractTokenFromBearer(""))
	assert.Empty(t, ExtractTokenFromBearer("Bearer "))
}

func TestPasswordService(t *testing.T) {
	svc := NewPasswordServiceWithCost(4) // low cost to keep the test fast

	hash, err := svc.HashPassword("s3cret-pass")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-pass", hash)

	assert.NoError(t, svc.VerifyPassword(hash, "s3cret-pass"))
	assert.Error(t, svc.VerifyPassword(hash, "wrong-pass"))

	_, err = svc.HashPassword("")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestIsValidPassword(t *testing.T) {
	assert.Error(t, IsValidPassword("short"))
	assert.NoError(t, IsValidPassword("long-enough-password"))
}
