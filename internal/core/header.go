package core

import (
	"bytes"
	"fmt"

	"github.com/illarion/pagecodec/internal/crypto"
	"github.com/illarion/pagecodec/internal/storage"
)

// Engine header of page 1. Bytes 0-23 stay in the clear on disk; 72-91 are
// reserved by the file format and must be zero, which is what lets Open tell
// a wrong key from a right one.
const (
	reservedStart = 72
	reservedEnd   = 92
)

// headerTail holds bytes 18-23 of the engine header: file format write and
// read versions, reserved bytes per page, and the payload fractions.
var headerTail = [6]byte{1, 1, 0, 64, 32, 32}

// NewPage1 returns an empty first page for the given page size and suite.
func NewPage1(pageSize int, suite crypto.Suite) []byte {
	p := make([]byte, pageSize)
	copy(p, suite.FileHeader[:])
	ps := storage.EncodePageSize(pageSize)
	copy(p[16:], ps[:])
	copy(p[18:], headerTail[:])
	return p
}

// checkPage1 validates the plaintext engine header of page 1.
func checkPage1(p []byte, suite crypto.Suite) error {
	if len(p) < reservedEnd {
		return fmt.Errorf("%w: page too small", ErrInvalidHeader)
	}
	if !bytes.Equal(p[:16], suite.FileHeader[:]) {
		return fmt.Errorf("%w: bad file magic", ErrInvalidHeader)
	}
	n, err := storage.PageSizeFromHeader(p)
	if err != nil || n != len(p) {
		return fmt.Errorf("%w: page size field does not match %d", ErrInvalidHeader, len(p))
	}
	for _, b := range p[reservedStart:reservedEnd] {
		if b != 0 {
			return fmt.Errorf("%w: reserved bytes %d-%d must be zero", ErrInvalidHeader, reservedStart, reservedEnd-1)
		}
	}
	return nil
}
