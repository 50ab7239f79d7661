package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateClientToken(t *testing.T) {
	authority := NewAuth("test-secret")

	token, expiresAt, err := authority.GenerateClientToken("client-7")
	if err != nil {
		t.Fatalf("GenerateClientToken() error = %v", err)
	}
	if time.Until(expiresAt) < 23*time.Hour {
		t.Errorf("Expected roughly 24h validity, got %v", time.Until(expiresAt))
	}

	claims, err := authority.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.ClientID != "client-7" {
		t.Errorf("Expected client-7, got %s", claims.ClientID)
	}
	if claims.Role != RoleClient {
		t.Errorf("Expected role %s, got %s", RoleClient, claims.Role)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := NewAuth("secret-one").GenerateClientToken("client-1")
	if err != nil {
		t.Fatalf("GenerateClientToken() error = %v", err)
	}

	if _, err := NewAuth("secret-two").ValidateToken(token); err == nil {
		t.Error("Expected validation to fail with a different secret")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	authority := NewAuth("test-secret")

	claims := &JWTClaims{
		ClientID: "client-1",
		Role:     RoleClient,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := authority.ValidateToken(expired); err == nil {
		t.Error("Expected validation to fail for an expired token")
	}
}

func TestValidateTokenRejectsUnsignedAlgorithm(t *testing.T) {
	authority := NewAuth("test-secret")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{
		ClientID: "client-1",
		Role:     RoleClient,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := authority.ValidateToken(unsigned); err == nil {
		t.Error("Expected validation to reject the none algorithm")
	}
}
