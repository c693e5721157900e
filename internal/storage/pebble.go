package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

var (
	metaPageSize  = []byte("m/page_size")
	metaPageCount = []byte("m/page_count")
	pagePrefix    = []byte("p/")
)

// PebbleStore keeps pages in a Pebble database directory.
type PebbleStore struct {
	db       *pebble.DB
	dir      string
	pageSize int
}

// OpenPebble opens or creates a Pebble page store in dir.
func OpenPebble(dir string, pageSize int) (*PebbleStore, error) {
	return openPebble(dir, pageSize, true)
}

func openPebble(dir string, pageSize int, create bool) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{ErrorIfNotExists: !create})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store: %w", err)
	}

	s := &PebbleStore{db: db, dir: dir, pageSize: pageSize}
	if err := s.initialize(create); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PebbleStore) initialize(create bool) error {
	n, err := s.getUint32(metaPageSize)
	if err == nil {
		s.pageSize = int(n)
		return checkPageSize(s.pageSize)
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return err
	}
	if !create {
		return fmt.Errorf("%w: %s holds no pages", ErrStoreNotFound, s.dir)
	}

	if err := checkPageSize(s.pageSize); err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(metaPageSize, encodeUint32(uint32(s.pageSize)), nil); err != nil {
		return err
	}
	if err := b.Set(metaPageCount, encodeUint32(0), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func encodeUint32(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func (s *PebbleStore) getUint32(key []byte) (uint32, error) {
	data, closer, err := s.db.Get(key)
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(data) != 4 {
		return 0, fmt.Errorf("corrupt metadata entry %s", key)
	}
	return binary.BigEndian.Uint32(data), nil
}

func (s *PebbleStore) PageSize() int   { return s.pageSize }
func (s *PebbleStore) Path() string    { return s.dir }
func (s *PebbleStore) Backend() string { return BackendPebble }

// PageCount returns the number of stored pages.
func (s *PebbleStore) PageCount() (uint32, error) {
	return s.getUint32(metaPageCount)
}

// ReadPage reads page pgno into buf.
func (s *PebbleStore) ReadPage(pgno uint32, buf []byte) error {
	count, err := s.PageCount()
	if err != nil {
		return err
	}
	if err := checkAccess(pgno, len(buf), s.pageSize, count, false); err != nil {
		return err
	}
	return s.readRaw(pgno, buf)
}

func (s *PebbleStore) readRaw(pgno uint32, buf []byte) error {
	data, closer, err := s.db.Get(pageKey(pagePrefix, pgno))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return fmt.Errorf("%w: page %d", ErrPageNotFound, pgno)
		}
		return err
	}
	defer closer.Close()
	if len(data) != s.pageSize {
		return fmt.Errorf("%w: page %d is truncated", ErrPageNotFound, pgno)
	}
	copy(buf, data)
	return nil
}

// WritePage overwrites page pgno, or appends it if pgno is one past the end.
func (s *PebbleStore) WritePage(pgno uint32, data []byte) error {
	count, err := s.PageCount()
	if err != nil {
		return err
	}
	if err := checkAccess(pgno, len(data), s.pageSize, count, true); err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(pageKey(pagePrefix, pgno), data, nil); err != nil {
		return err
	}
	if pgno > count {
		if err := b.Set(metaPageCount, encodeUint32(pgno), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// Rewrite passes every page through fn and commits the results as one
// synced batch.
func (s *PebbleStore) Rewrite(fn func(pgno uint32, page []byte) ([]byte, error)) error {
	count, err := s.PageCount()
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()

	buf := make([]byte, s.pageSize)
	for pgno := uint32(1); pgno <= count; pgno++ {
		if err := s.readRaw(pgno, buf); err != nil {
			return err
		}
		out, err := fn(pgno, buf)
		if err != nil {
			return err
		}
		if len(out) != s.pageSize {
			return fmt.Errorf("rewrite of page %d returned %d bytes, want %d", pgno, len(out), s.pageSize)
		}
		if err := b.Set(pageKey(pagePrefix, pgno), out, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// Sync is a no-op: every write is committed with pebble.Sync.
func (s *PebbleStore) Sync() error {
	return nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
