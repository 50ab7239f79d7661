package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleClient is the only role issued; every token authorizes one UI client.
const RoleClient = "client"

// clientTokenTTL bounds how long an issued token stays valid.
const clientTokenTTL = 24 * time.Hour

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Auth issues and validates the HS256 tokens guarding the API. The secret
// is injected from config, never compiled in.
type Auth struct {
	secret []byte
}

// NewAuth creates a new token authority
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// GenerateClientToken generates a JWT token for client authentication
func (a *Auth) GenerateClientToken(clientID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(clientTokenTTL)
	claims := &JWTClaims{
		ClientID: clientID,
		Role:     RoleClient,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (a *Auth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}
