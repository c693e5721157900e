package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
)

const (
	SaltSize   = 16 // Per-database salt stored at the start of page 1
	KeySize    = 32 // AES-256 key size
	DigestSize = 32 // Output size of every supported digest
	HeaderSize = 24 // Cleartext prefix of page 1: salt + engine header
)

var (
	ErrInvalidKeyFormat = errors.New("invalid key format")
	ErrCipherFailure    = errors.New("cipher failure")
	ErrInvalidSuite     = errors.New("invalid cipher suite")
)

// NewSalt generates a random database salt
func NewSalt() ([SaltSize]byte, error) {
	var salt [SaltSize]byte
	b, err := GenerateRandom(SaltSize)
	if err != nil {
		return salt, fmt.Errorf("failed to generate salt: %w", err)
	}
	copy(salt[:], b)
	return salt, nil
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
