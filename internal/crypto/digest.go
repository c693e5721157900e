package crypto

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Digest identifies the hash function of a suite. It is used both to turn a
// passphrase into a key and to derive per-page IVs.
type Digest int

const (
	DigestSHA256 Digest = iota
	DigestBLAKE2b256
	DigestBLAKE3
)

func (d Digest) String() string {
	switch d {
	case DigestSHA256:
		return "sha256"
	case DigestBLAKE2b256:
		return "blake2b-256"
	case DigestBLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("digest(%d)", int(d))
	}
}

// Size returns the output length in bytes, or 0 for an unknown digest.
func (d Digest) Size() int {
	switch d {
	case DigestSHA256, DigestBLAKE2b256, DigestBLAKE3:
		return DigestSize
	default:
		return 0
	}
}

func (d Digest) newHash() (hash.Hash, error) {
	switch d {
	case DigestSHA256:
		return sha256.New(), nil
	case DigestBLAKE2b256:
		return blake2b.New256(nil)
	case DigestBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown digest %s", ErrInvalidSuite, d)
	}
}

// Sum hashes the concatenation of parts.
func (d Digest) Sum(parts ...[]byte) ([]byte, error) {
	h, err := d.newHash()
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil), nil
}
