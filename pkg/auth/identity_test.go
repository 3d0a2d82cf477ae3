package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedIdentity(t *testing.T, secret []byte, exp time.Time) string {
	t.Helper()
	claims := IdentityClaims{
		Email:   "buyer@example.com",
		Name:    "Buyer One",
		Picture: "https://example.com/p.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "social|123",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func TestReadIdentityToken(t *testing.T) {
	now := time.Now()
	raw := signedIdentity(t, []byte("unknown-to-client"), now.Add(time.Hour))

	claims, err := ReadIdentityToken(raw, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Email != "buyer@example.com" || claims.Subject != "social|123" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := ReadIdentityToken(raw, now.Add(2*time.Hour)); !errors.Is(err, ErrExpiredIdentityToken) {
		t.Fatalf("expected expiry error, got %v", err)
	}
	if _, err := ReadIdentityToken("not.a.jwt", now); !errors.Is(err, ErrInvalidIdentityToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestValidateIdentityToken(t *testing.T) {
	secret := []byte("shared")
	raw := signedIdentity(t, secret, time.Now().Add(time.Hour))

	claims, err := ValidateIdentityToken(raw, func(*jwt.Token) (interface{}, error) { return secret, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Name != "Buyer One" {
		t.Fatalf("unexpected name %q", claims.Name)
	}

	if _, err := ValidateIdentityToken(raw, func(*jwt.Token) (interface{}, error) { return []byte("wrong"), nil }); !errors.Is(err, ErrInvalidIdentityToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	expired := signedIdentity(t, secret, time.Now().Add(-time.Minute))
	if _, err := ValidateIdentityToken(expired, func(*jwt.Token) (interface{}, error) { return secret, nil }); !errors.Is(err, ErrExpiredIdentityToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}
