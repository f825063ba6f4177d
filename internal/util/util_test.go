package util

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("user-123", "secret", time.Minute)
	if err != nil {
		t.Fatalf("SignJWT failed: %v", err)
	}

	claims, err := ValidateJWT(token, "secret")
	if err != nil {
		t.Fatalf("ValidateJWT failed: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("subject = %q, want %q", claims.Subject, "user-123")
	}
}

func TestValidateJWTWrongSecret(t *testing.T) {
	token, err := SignJWT("user-123", "secret", time.Minute)
	if err != nil {
		t.Fatalf("SignJWT failed: %v", err)
	}
	if _, err := ValidateJWT(token, "other-secret"); err == nil {
		t.Error("token validated with wrong secret")
	}
}

func TestValidateJWTExpired(t *testing.T) {
	token, err := SignJWT("user-123", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("SignJWT failed: %v", err)
	}
	if _, err := ValidateJWT(token, "secret"); err == nil {
		t.Error("expired token validated")
	}
}

func TestValidateJWTMissingSubject(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	if _, err := ValidateJWT(token, "secret"); err == nil {
		t.Error("token without subject validated")
	}
}
