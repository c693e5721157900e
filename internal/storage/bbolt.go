package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket = []byte("config") // version, page size, timestamps
	PagesBucket  = []byte("pages")  // raw pages keyed by big-endian page number
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigPageSize = []byte("page_size")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
)

// BoltStore keeps pages in a BBolt database
type BoltStore struct {
	db       *bolt.DB
	pageSize int
}

// OpenBolt opens or creates a BBolt page store
func OpenBolt(path string, pageSize int) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &BoltStore{db: db, pageSize: pageSize}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the bucket structure for a new store, or loads the page
// size of an existing one
func (s *BoltStore) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, PagesBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if data := config.Get(ConfigPageSize); data != nil {
			if len(data) != 4 {
				return fmt.Errorf("%w: corrupt page_size entry", ErrInvalidPageSize)
			}
			s.pageSize = int(binary.BigEndian.Uint32(data))
			return checkPageSize(s.pageSize)
		}

		if err := checkPageSize(s.pageSize); err != nil {
			return err
		}
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}
		ps := make([]byte, 4)
		binary.BigEndian.PutUint32(ps, uint32(s.pageSize))
		if err := config.Put(ConfigPageSize, ps); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

func (s *BoltStore) PageSize() int   { return s.pageSize }
func (s *BoltStore) Path() string    { return s.db.Path() }
func (s *BoltStore) Backend() string { return BackendBolt }

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Sync forces an fdatasync of the database file
func (s *BoltStore) Sync() error {
	return s.db.Sync()
}

// pageCount reads the highest page number; pages are contiguous from 1
func pageCount(tx *bolt.Tx) uint32 {
	pages := tx.Bucket(PagesBucket)
	if pages == nil {
		return 0
	}
	k, _ := pages.Cursor().Last()
	if len(k) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(k)
}

// PageCount returns the number of stored pages
func (s *BoltStore) PageCount() (uint32, error) {
	var count uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		count = pageCount(tx)
		return nil
	})
	return count, err
}

// ReadPage retrieves a raw page
func (s *BoltStore) ReadPage(pgno uint32, buf []byte) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if err := checkAccess(pgno, len(buf), s.pageSize, pageCount(tx), false); err != nil {
			return err
		}
		data := tx.Bucket(PagesBucket).Get(pageKey(nil, pgno))
		if len(data) != s.pageSize {
			return fmt.Errorf("%w: page %d is missing or truncated", ErrPageNotFound, pgno)
		}
		// The slice is only valid during the transaction
		copy(buf, data)
		return nil
	})
}

// WritePage stores a raw page
func (s *BoltStore) WritePage(pgno uint32, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := checkAccess(pgno, len(data), s.pageSize, pageCount(tx), true); err != nil {
			return err
		}
		if err := tx.Bucket(PagesBucket).Put(pageKey(nil, pgno), data); err != nil {
			return err
		}
		return touch(tx)
	})
}

func touch(tx *bolt.Tx) error {
	modified, _ := time.Now().MarshalBinary()
	return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
}

// Rewrite passes every page through fn and stores the results in a single
// write transaction
func (s *BoltStore) Rewrite(fn func(pgno uint32, page []byte) ([]byte, error)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		pages := tx.Bucket(PagesBucket)
		count := pageCount(tx)

		// Collect first: the bucket must not change while values read from it are in use
		out := make([][]byte, 0, count)
		buf := make([]byte, s.pageSize)
		for pgno := uint32(1); pgno <= count; pgno++ {
			data := pages.Get(pageKey(nil, pgno))
			if len(data) != s.pageSize {
				return fmt.Errorf("%w: page %d is missing or truncated", ErrPageNotFound, pgno)
			}
			copy(buf, data)
			next, err := fn(pgno, buf)
			if err != nil {
				return err
			}
			if len(next) != s.pageSize {
				return fmt.Errorf("rewrite of page %d returned %d bytes, want %d", pgno, len(next), s.pageSize)
			}
			out = append(out, next)
		}

		for i, data := range out {
			if err := pages.Put(pageKey(nil, uint32(i+1)), data); err != nil {
				return err
			}
		}
		return touch(tx)
	})
}

// Created retrieves the creation timestamp
func (s *BoltStore) Created() (time.Time, error) {
	return s.timestamp(ConfigCreated)
}

// Modified retrieves the last modified timestamp
func (s *BoltStore) Modified() (time.Time, error) {
	return s.timestamp(ConfigModified)
}

func (s *BoltStore) timestamp(key []byte) (time.Time, error) {
	var t time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		data := config.Get(key)
		if data == nil {
			return fmt.Errorf("%s not found", key)
		}
		return t.UnmarshalBinary(data)
	})
	return t, err
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after a rewrite has left freed pages behind.
func (s *BoltStore) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	// Create new database
	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	// Copy all buckets
	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	// Reopen database
	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
