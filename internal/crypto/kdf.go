package crypto

import (
	"encoding/hex"
	"fmt"
)

// IsHexCredential reports whether the credential uses the x'<hex>' blob
// literal syntax. The prefix is matched case-insensitively.
func IsHexCredential(credential []byte) bool {
	return len(credential) >= 2 && (credential[0] == 'x' || credential[0] == 'X') && credential[1] == '\''
}

// DeriveKey turns a credential into a key of exactly s.KeySize bytes.
//
// A credential of the form x'<hex>' is decoded and used as the key. Anything
// else is treated as a passphrase and hashed once with the suite digest.
// The caller owns the returned key and should ClearBytes it when done.
func (s Suite) DeriveKey(credential []byte) ([]byte, error) {
	if len(credential) == 0 {
		return nil, fmt.Errorf("%w: empty credential", ErrInvalidKeyFormat)
	}

	if IsHexCredential(credential) {
		return s.decodeHexKey(credential)
	}

	key, err := s.Digest.Sum(credential)
	if err != nil {
		return nil, err
	}
	if len(key) != s.KeySize {
		ClearBytes(key)
		return nil, fmt.Errorf("%w: digest produced %d bytes, want %d", ErrInvalidSuite, len(key), s.KeySize)
	}
	return key, nil
}

func (s Suite) decodeHexKey(credential []byte) ([]byte, error) {
	if len(credential) < 3 || credential[len(credential)-1] != '\'' {
		return nil, fmt.Errorf("%w: blob literal must end with '", ErrInvalidKeyFormat)
	}
	payload := credential[2 : len(credential)-1]
	if len(payload) != 2*s.KeySize {
		return nil, fmt.Errorf("%w: blob literal has %d hex digits, want %d", ErrInvalidKeyFormat, len(payload), 2*s.KeySize)
	}

	key := make([]byte, s.KeySize)
	if _, err := hex.Decode(key, payload); err != nil {
		ClearBytes(key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return key, nil
}
