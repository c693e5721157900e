package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Mode selects the direction of a page transform.
type Mode int

const (
	Decrypt Mode = iota
	Encrypt
)

func (m Mode) String() string {
	switch m {
	case Decrypt:
		return "decrypt"
	case Encrypt:
		return "encrypt"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Transform encrypts or decrypts src into dst. Both slices must have the same
// length; the stream mode never pads, so the output is exactly as long as the
// input. dst and src may be the same slice.
func (s Suite) Transform(key, iv []byte, mode Mode, dst, src []byte) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%w: output length %d, input length %d", ErrCipherFailure, len(dst), len(src))
	}
	if len(key) != s.KeySize {
		return fmt.Errorf("%w: key length %d, want %d", ErrCipherFailure, len(key), s.KeySize)
	}
	if len(iv) < s.Cipher.IVSize() {
		return fmt.Errorf("%w: iv length %d, want at least %d", ErrCipherFailure, len(iv), s.Cipher.IVSize())
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}

	iv = iv[:s.Cipher.IVSize()]
	var stream cipher.Stream
	switch mode {
	case Encrypt:
		stream = cipher.NewCFBEncrypter(block, iv)
	case Decrypt:
		stream = cipher.NewCFBDecrypter(block, iv)
	default:
		return fmt.Errorf("%w: unknown mode %s", ErrCipherFailure, mode)
	}
	stream.XORKeyStream(dst, src)
	return nil
}
