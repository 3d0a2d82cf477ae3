package auth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

// PersonalMessageHash returns the EIP-191 personal_sign digest of message.
func PersonalMessageHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return keccak256([]byte(prefixed))
}

// RecoverPersonalSigner recovers the checksummed address that produced an
// EIP-191 personal_sign signature over message.
func RecoverPersonalSigner(message, signature string) (string, error) {
	sig, err := decodeHexSignature(signature)
	if err != nil {
		return "", fmt.Errorf("invalid signature format: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	r := sig[0:32]
	s := sig[32:64]
	v := sig[64]

	// Wallets emit 27/28; some hardware signers emit 0/1.
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return "", fmt.Errorf("invalid recovery id: %d", v)
	}

	pubKey, _, err := ecdsa.RecoverCompact(makeCompactSig(r, s, v), PersonalMessageHash(message))
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}
	return pubKeyToEthAddress(pubKey), nil
}

// VerifyEthSignature reports whether signature over message was produced by address.
func VerifyEthSignature(address, message, signature string) (bool, error) {
	recovered, err := RecoverPersonalSigner(message, signature)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(recovered, address), nil
}

// btcec expects [27 + recovery id][R][S] for uncompressed recovery.
func makeCompactSig(r, s []byte, v byte) []byte {
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:33], r)
	copy(compact[33:65], s)
	return compact
}

func pubKeyToEthAddress(pubKey *btcec.PublicKey) string {
	uncompressed := pubKey.SerializeUncompressed()
	hash := keccak256(uncompressed[1:])
	return toChecksumAddress(hex.EncodeToString(hash[12:]))
}

// NormalizeEthAddress converts a 40-hex-char address, with or without 0x, to
// EIP-55 checksum form.
func NormalizeEthAddress(address string) (string, error) {
	addr := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(address)), "0x")
	if len(addr) != 40 {
		return "", fmt.Errorf("ethereum address must be 40 hex characters")
	}
	if _, err := hex.DecodeString(addr); err != nil {
		return "", fmt.Errorf("invalid hex in address: %w", err)
	}
	return toChecksumAddress(addr), nil
}

// SameAddress compares two addresses ignoring case and 0x prefix.
// Malformed input never matches.
func SameAddress(a, b string) bool {
	na, err := NormalizeEthAddress(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeEthAddress(b)
	if err != nil {
		return false
	}
	return na == nb
}

func toChecksumAddress(addr string) string {
	addr = strings.ToLower(addr)
	hash := keccak256([]byte(addr))

	result := make([]byte, 42)
	result[0] = '0'
	result[1] = 'x'

	for i := 0; i < 40; i++ {
		c := addr[i]
		hashNibble := hash[i/2]
		if i%2 == 0 {
			hashNibble >>= 4
		}
		hashNibble &= 0x0f

		if hashNibble >= 8 && c >= 'a' && c <= 'f' {
			result[i+2] = c - 32
		} else {
			result[i+2] = c
		}
	}
	return string(result)
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

func decodeHexSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")
	sig = strings.TrimPrefix(sig, "0X")
	return hex.DecodeString(sig)
}
