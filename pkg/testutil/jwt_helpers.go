package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/conduit-ucpi/webapp-sub000/pkg/auth"
)

// IdentityTokenHelper mints identity tokens like a social login SDK would.
type IdentityTokenHelper struct {
	Secret []byte
}

// NewIdentityTokenHelper creates a helper with a default test secret
func NewIdentityTokenHelper() *IdentityTokenHelper {
	return &IdentityTokenHelper{
		Secret: []byte("test-secret-for-unit-tests"),
	}
}

// Generate signs an identity token for the given profile.
func (h *IdentityTokenHelper) Generate(email, name, walletAddress string, expiresAt time.Time) (string, error) {
	claims := &auth.IdentityClaims{
		Email:         email,
		Name:          name,
		WalletAddress: walletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.Secret)
}

// GenerateValid signs a token valid for an hour.
func (h *IdentityTokenHelper) GenerateValid(email, walletAddress string) (string, error) {
	return h.Generate(email, "Test User", walletAddress, time.Now().Add(time.Hour))
}

// GenerateExpired signs a token that expired an hour ago.
func (h *IdentityTokenHelper) GenerateExpired(email, walletAddress string) (string, error) {
	return h.Generate(email, "Test User", walletAddress, time.Now().Add(-time.Hour))
}

// KeyFunc verifies tokens minted by this helper.
func (h *IdentityTokenHelper) KeyFunc(*jwt.Token) (any, error) {
	return h.Secret, nil
}
