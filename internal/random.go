package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// NewNumericCode draws a cryptographically random numeric code of the given
// width, zero-padded digits included.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// HashCode hashes a verification code for at-rest storage. Pending challenge
// records never hold the plaintext code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// CodeMatches compares a submitted code against a stored hash in constant
// time.
func CodeMatches(hash [32]byte, code string) bool {
	sum := sha256.Sum256([]byte(code))
	return subtle.ConstantTimeCompare(hash[:], sum[:]) == 1
}

// NewSecret draws size cryptographically random bytes for a TOTP secret.
func NewSecret(size int) ([]byte, error) {
	if size < 20 {
		return nil, errors.New("secret size below 160 bits")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return raw, nil
}
