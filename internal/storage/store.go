package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendPebble = "pebble"

	DefaultPageSize = 4096
	MinPageSize     = 512
	MaxPageSize     = 65536

	pageSizeOffset = 16 // engine header: big-endian page size in page 1
	boltMagic      = 0xED0CDAED
	pebbleCurrent  = "CURRENT" // names the live manifest of a pebble directory
)

var (
	ErrPageNotFound    = errors.New("page not found")
	ErrInvalidPageSize = errors.New("invalid page size")
	ErrUnknownBackend  = errors.New("unknown storage backend")
	ErrStoreNotFound   = errors.New("no store at path")
)

// Store is a paged store of fixed-size pages numbered from 1.
type Store interface {
	PageSize() int
	PageCount() (uint32, error)
	ReadPage(pgno uint32, buf []byte) error
	WritePage(pgno uint32, data []byte) error
	Rewrite(fn func(pgno uint32, page []byte) ([]byte, error)) error
	Sync() error
	Close() error
	Path() string
	Backend() string
}

// Backends lists the accepted backend names.
func Backends() []string {
	return []string{BackendFile, BackendBolt, BackendPebble}
}

// Open opens or creates a store. pageSize is used only when the store is
// new; an existing store keeps the page size it was created with.
func Open(backend, path string, pageSize int) (Store, error) {
	switch backend {
	case "", BackendFile:
		s, err := OpenFile(path, pageSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBolt:
		s, err := OpenBolt(path, pageSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPebble:
		s, err := OpenPebble(path, pageSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// OpenExisting opens the store at path with the backend DetectBackend finds.
// Unlike Open it never creates anything.
func OpenExisting(path string) (Store, error) {
	switch DetectBackend(path) {
	case BackendFile:
		s, err := openFile(path, DefaultPageSize, false)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBolt:
		s, err := OpenBolt(path, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPebble:
		s, err := openPebble(path, DefaultPageSize, false)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
	}
}

// DetectBackend guesses the backend of an existing store at path: a directory
// holding a pebble CURRENT file is pebble, a file starting with a bbolt meta
// page is bolt, any other file is file. It returns "" if there is no store.
func DetectBackend(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if info.IsDir() {
		if _, err := os.Stat(filepath.Join(path, pebbleCurrent)); err != nil {
			return ""
		}
		return BackendPebble
	}

	f, err := os.Open(path)
	if err != nil {
		return BackendFile
	}
	defer f.Close()

	var hdr [20]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return BackendFile
	}
	if binary.LittleEndian.Uint32(hdr[16:20]) == boltMagic {
		return BackendBolt
	}
	return BackendFile
}

// ValidPageSize reports whether n is a power of two between MinPageSize and
// MaxPageSize.
func ValidPageSize(n int) bool {
	return n >= MinPageSize && n <= MaxPageSize && n&(n-1) == 0
}

// EncodePageSize returns the two-byte header encoding of a page size. 65536
// does not fit and is stored as 1.
func EncodePageSize(n int) [2]byte {
	var b [2]byte
	if n == MaxPageSize {
		n = 1
	}
	binary.BigEndian.PutUint16(b[:], uint16(n))
	return b
}

// PageSizeFromHeader reads the page size from the cleartext header of page 1.
func PageSizeFromHeader(page1 []byte) (int, error) {
	if len(page1) < pageSizeOffset+2 {
		return 0, fmt.Errorf("%w: header too short", ErrInvalidPageSize)
	}
	n := int(binary.BigEndian.Uint16(page1[pageSizeOffset:]))
	if n == 1 {
		n = MaxPageSize
	}
	if !ValidPageSize(n) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPageSize, n)
	}
	return n, nil
}

func checkPageSize(n int) error {
	if !ValidPageSize(n) {
		return fmt.Errorf("%w: %d (must be a power of two between %d and %d)", ErrInvalidPageSize, n, MinPageSize, MaxPageSize)
	}
	return nil
}

// checkAccess validates a page number and buffer length for a read or write
// against a store holding count pages. Writes may append one page.
func checkAccess(pgno uint32, bufLen, pageSize int, count uint32, write bool) error {
	if bufLen != pageSize {
		return fmt.Errorf("buffer is %d bytes, page size is %d", bufLen, pageSize)
	}
	limit := count
	if write {
		limit = count + 1
	}
	if pgno == 0 || pgno > limit {
		return fmt.Errorf("%w: page %d of %d", ErrPageNotFound, pgno, count)
	}
	return nil
}

func pageKey(prefix []byte, pgno uint32) []byte {
	k := make([]byte, len(prefix)+4)
	copy(k, prefix)
	binary.BigEndian.PutUint32(k[len(prefix):], pgno)
	return k
}
