package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// JWTConfig holds signing settings for agency API tokens.
type JWTConfig struct {
	SecretKey           []byte
	AccessTokenDuration time.Duration
	Issuer              string
}

// Claims carried by an agency access token.
type Claims struct {
	AgencyID string `json:"agency_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// JWTService issues and validates agency tokens.
type JWTService struct {
	config *JWTConfig
}

func NewJWTService(config *JWTConfig) *JWTService {
	return &JWTService{config: config}
}

// GenerateAccessToken creates a signed access token for an agency.
func (s *JWTService) GenerateAccessToken(agencyID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		AgencyID: agencyID,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.SecretKey)
}

// ValidateToken verifies the signature and expiry and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.config.SecretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ExtractTokenFromBearer extracts the token from a Bearer header value.
func ExtractTokenFromBearer(authHeader string) string {
	const bearerPrefix = "Bearer "
	if len(authHeader) > len(bearerPrefix) && authHeader[:len(bearerPrefix)] == bearerPrefix {
		return authHeader[len(bearerPrefix):]
	}
	return ""
}
