package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidIdentityToken = errors.New("invalid identity token")
	ErrExpiredIdentityToken = errors.New("identity token expired")
)

// IdentityClaims are the profile claims a social-login wallet SDK puts in
// its ID token.
type IdentityClaims struct {
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Nickname      string `json:"nickname,omitempty"`
	Picture       string `json:"picture,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	jwt.RegisteredClaims
}

// ReadIdentityToken decodes an SDK-issued ID token without verifying its
// signature. The backend verifies it on login; the client only needs the
// profile claims and expiry.
func ReadIdentityToken(raw string, now time.Time) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentityToken, err)
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredIdentityToken
	}
	return claims, nil
}

// ValidateIdentityToken verifies an ID token with the supplied key function.
func ValidateIdentityToken(raw string, keyFunc jwt.Keyfunc) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredIdentityToken
		}
		return nil, ErrInvalidIdentityToken
	}
	if !token.Valid {
		return nil, ErrInvalidIdentityToken
	}
	return claims, nil
}
