package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// SignatureTokenType tags tokens built from a wallet signature rather
	// than an SDK-issued identity token.
	SignatureTokenType = "signature_auth"

	// SignatureTokenIssuer is embedded in every token this client builds.
	SignatureTokenIssuer = "escrow-webapp"

	// MaxFutureSkew is how far ahead of now a token timestamp may be.
	MaxFutureSkew = time.Minute
)

var (
	ErrMalformedToken    = errors.New("malformed signature token")
	ErrTokenExpired      = errors.New("signature token expired")
	ErrTokenFromFuture   = errors.New("signature token timestamp is in the future")
	ErrSignerMismatch    = errors.New("signature does not match wallet address")
	ErrMessageMismatch   = errors.New("signed message does not match token fields")
	ErrUnsupportedIssuer = errors.New("unsupported token issuer")
)

// SignatureToken is the opaque bearer credential handed to the backend login
// endpoint when the wallet has no native identity token.
type SignatureToken struct {
	Type          string `json:"type"`
	WalletAddress string `json:"walletAddress"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
	Nonce         string `json:"nonce"`
	Issuer        string `json:"issuer"`
	WalletType    string `json:"walletType"`
}

// NewNonce returns a fresh random nonce for one authentication attempt.
func NewNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// AuthMessage renders the message a wallet signs to prove control of address.
func AuthMessage(address string, at time.Time, nonce string) string {
	return fmt.Sprintf("Authenticate wallet %s at %d with nonce %s", address, at.UnixMilli(), nonce)
}

// Encode serialises the token into the string sent as a bearer credential.
func (t SignatureToken) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal signature token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// IssuedAt returns the token timestamp as a time.
func (t SignatureToken) IssuedAt() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// ParseSignatureToken decodes a bearer string produced by Encode.
func ParseSignatureToken(token string) (*SignatureToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	var st SignatureToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if st.Type != SignatureTokenType || st.WalletAddress == "" || st.Signature == "" || st.Nonce == "" {
		return nil, ErrMalformedToken
	}
	return &st, nil
}

// VerifySignatureToken parses token and checks that the signed message embeds
// the token's address, timestamp and nonce, that the timestamp lies within
// maxAge of now, and that the recovered signer is the embedded address.
func VerifySignatureToken(token string, maxAge time.Duration, now time.Time) (*SignatureToken, error) {
	st, err := ParseSignatureToken(token)
	if err != nil {
		return nil, err
	}
	if st.Issuer != SignatureTokenIssuer {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedIssuer, st.Issuer)
	}
	address, err := NormalizeEthAddress(st.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if st.Message != AuthMessage(st.WalletAddress, st.IssuedAt(), st.Nonce) {
		return nil, ErrMessageMismatch
	}

	age := now.Sub(st.IssuedAt())
	if age < -MaxFutureSkew {
		return nil, ErrTokenFromFuture
	}
	if maxAge > 0 && age > maxAge {
		return nil, ErrTokenExpired
	}

	ok, err := VerifyEthSignature(address, st.Message, st.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignerMismatch, err)
	}
	if !ok {
		return nil, ErrSignerMismatch
	}
	return st, nil
}

// BuildSignatureToken asks sign for a signature over a fresh auth message for
// address and serialises the result into a bearer token.
func BuildSignatureToken(address, walletType string, at time.Time, sign func(message string) (string, error)) (string, *SignatureToken, error) {
	normalized, err := NormalizeEthAddress(address)
	if err != nil {
		return "", nil, err
	}
	nonce := NewNonce()
	message := AuthMessage(normalized, at, nonce)
	signature, err := sign(message)
	if err != nil {
		return "", nil, err
	}
	st := SignatureToken{
		Type:          SignatureTokenType,
		WalletAddress: normalized,
		Message:       message,
		Signature:     signature,
		Timestamp:     at.UnixMilli(),
		Nonce:         nonce,
		Issuer:        SignatureTokenIssuer,
		WalletType:    walletType,
	}
	encoded, err := st.Encode()
	if err != nil {
		return "", nil, err
	}
	return encoded, &st, nil
}
