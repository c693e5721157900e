package crypto

import (
	"encoding/binary"
)

// DeriveIV computes the IV for a page as Digest(salt || page number), with the
// page number encoded as 4 little-endian bytes. The result is deterministic, so
// decryption reproduces the IV used at encryption time without storing it.
func (s Suite) DeriveIV(salt [SaltSize]byte, pgno uint32) ([]byte, error) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], pgno)
	return s.Digest.Sum(salt[:], n[:])
}
