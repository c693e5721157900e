package crypto

import (
	"crypto/aes"
	"fmt"
)

// Cipher identifies the block cipher and chaining mode of a suite.
type Cipher int

const (
	CipherAES256CFB Cipher = iota
)

func (c Cipher) String() string {
	switch c {
	case CipherAES256CFB:
		return "aes-256-cfb"
	default:
		return fmt.Sprintf("cipher(%d)", int(c))
	}
}

// KeySize returns the key length the cipher requires, or 0 if unknown.
func (c Cipher) KeySize() int {
	switch c {
	case CipherAES256CFB:
		return 32
	default:
		return 0
	}
}

// IVSize returns the IV length the cipher consumes, or 0 if unknown.
func (c Cipher) IVSize() int {
	switch c {
	case CipherAES256CFB:
		return aes.BlockSize
	default:
		return 0
	}
}

// FileMagic is the engine's file header that occupies bytes 0-15 of a
// plaintext page 1. On disk the codec stores the salt there instead.
var FileMagic = [16]byte{'S', 'Q', 'L', 'i', 't', 'e', ' ', 'f', 'o', 'r', 'm', 'a', 't', ' ', '3', 0}

// Suite fixes the algorithms used for one database. A suite is chosen when a
// codec is attached and never changes for the lifetime of that codec, so the
// on-disk format stays stable across opens.
type Suite struct {
	Name       string
	Cipher     Cipher
	Digest     Digest
	KeySize    int
	FileHeader [16]byte
}

// DefaultSuite is AES-256-CFB with SHA-256, the format written by default.
var DefaultSuite = Suite{
	Name:       "aes-256-cfb-sha256",
	Cipher:     CipherAES256CFB,
	Digest:     DigestSHA256,
	KeySize:    KeySize,
	FileHeader: FileMagic,
}

var suites = map[string]Suite{
	DefaultSuite.Name: DefaultSuite,
	"aes-256-cfb-blake2b": {
		Name:       "aes-256-cfb-blake2b",
		Cipher:     CipherAES256CFB,
		Digest:     DigestBLAKE2b256,
		KeySize:    KeySize,
		FileHeader: FileMagic,
	},
	"aes-256-cfb-blake3": {
		Name:       "aes-256-cfb-blake3",
		Cipher:     CipherAES256CFB,
		Digest:     DigestBLAKE3,
		KeySize:    KeySize,
		FileHeader: FileMagic,
	},
}

// SuiteByName looks up a named suite. An empty name selects DefaultSuite.
func SuiteByName(name string) (Suite, error) {
	if name == "" {
		return DefaultSuite, nil
	}
	s, ok := suites[name]
	if !ok {
		return Suite{}, fmt.Errorf("%w: unknown suite %q", ErrInvalidSuite, name)
	}
	return s, nil
}

// SuiteNames returns the names accepted by SuiteByName.
func SuiteNames() []string {
	return []string{DefaultSuite.Name, "aes-256-cfb-blake2b", "aes-256-cfb-blake3"}
}

// Validate checks the length relations the scheme depends on: a passphrase
// digest must be exactly one key long and an IV digest must cover the
// cipher's IV.
func (s Suite) Validate() error {
	if s.Cipher.KeySize() == 0 {
		return fmt.Errorf("%w: unknown cipher %s", ErrInvalidSuite, s.Cipher)
	}
	if s.Digest.Size() == 0 {
		return fmt.Errorf("%w: unknown digest %s", ErrInvalidSuite, s.Digest)
	}
	if s.KeySize != s.Cipher.KeySize() {
		return fmt.Errorf("%w: key size %d, %s needs %d", ErrInvalidSuite, s.KeySize, s.Cipher, s.Cipher.KeySize())
	}
	if s.Digest.Size() != s.KeySize {
		return fmt.Errorf("%w: %s yields %d bytes, key size is %d", ErrInvalidSuite, s.Digest, s.Digest.Size(), s.KeySize)
	}
	if s.Digest.Size() < s.Cipher.IVSize() {
		return fmt.Errorf("%w: %s too short for %s IV", ErrInvalidSuite, s.Digest, s.Cipher)
	}
	return nil
}
