package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// osOpenFile is replaced in tests to simulate failures.
var osOpenFile = os.OpenFile

// FileStore keeps pages back to back in a single file.
type FileStore struct {
	f        *os.File // nil after a rewrite that could not reopen the file
	path     string
	pageSize int
}

// OpenFile opens or creates a page file. For an existing, non-empty file the
// page size comes from the header of page 1 and pageSize is ignored.
func OpenFile(path string, pageSize int) (*FileStore, error) {
	return openFile(path, pageSize, true)
}

func openFile(path string, pageSize int, create bool) (*FileStore, error) {
	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE
	}
	f, err := osOpenFile(path, flag, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open page file: %w", err)
	}

	s := &FileStore{f: f, path: path, pageSize: pageSize}
	if err := s.detectPageSize(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) detectPageSize() error {
	info, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat page file: %w", err)
	}
	if info.Size() == 0 {
		return checkPageSize(s.pageSize)
	}

	hdr := make([]byte, pageSizeOffset+2)
	if _, err := s.f.ReadAt(hdr, 0); err != nil {
		return fmt.Errorf("failed to read page 1 header: %w", err)
	}
	n, err := PageSizeFromHeader(hdr)
	if err != nil {
		return err
	}
	if info.Size()%int64(n) != 0 {
		return fmt.Errorf("%w: file size %d is not a multiple of page size %d", ErrInvalidPageSize, info.Size(), n)
	}
	s.pageSize = n
	return nil
}

// handle returns the open file, reopening it if a rewrite left it closed.
func (s *FileStore) handle() (*os.File, error) {
	if s.f != nil {
		return s.f, nil
	}
	f, err := osOpenFile(s.path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen page file: %w", err)
	}
	s.f = f
	return f, nil
}

func (s *FileStore) PageSize() int   { return s.pageSize }
func (s *FileStore) Path() string    { return s.path }
func (s *FileStore) Backend() string { return BackendFile }

// PageCount returns the number of whole pages in the file.
func (s *FileStore) PageCount() (uint32, error) {
	f, err := s.handle()
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat page file: %w", err)
	}
	return uint32(info.Size() / int64(s.pageSize)), nil
}

func (s *FileStore) offset(pgno uint32) int64 {
	return int64(pgno-1) * int64(s.pageSize)
}

// ReadPage reads page pgno into buf.
func (s *FileStore) ReadPage(pgno uint32, buf []byte) error {
	count, err := s.PageCount()
	if err != nil {
		return err
	}
	if err := checkAccess(pgno, len(buf), s.pageSize, count, false); err != nil {
		return err
	}
	if _, err := s.f.ReadAt(buf, s.offset(pgno)); err != nil {
		return fmt.Errorf("failed to read page %d: %w", pgno, err)
	}
	return nil
}

// WritePage overwrites page pgno, or appends it if pgno is one past the end.
func (s *FileStore) WritePage(pgno uint32, data []byte) error {
	count, err := s.PageCount()
	if err != nil {
		return err
	}
	if err := checkAccess(pgno, len(data), s.pageSize, count, true); err != nil {
		return err
	}
	if _, err := s.f.WriteAt(data, s.offset(pgno)); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pgno, err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (s *FileStore) Sync() error {
	f, err := s.handle()
	if err != nil {
		return err
	}
	return f.Sync()
}

// Close closes the file.
func (s *FileStore) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Rewrite passes every page through fn and writes the results to a sibling
// temp file, which is synced and renamed over the original. A failure before
// the rename leaves the original file untouched. The rename commits: once it
// has happened Rewrite reports success, and if the new file cannot be opened
// right away the next call reopens it.
func (s *FileStore) Rewrite(fn func(pgno uint32, page []byte) ([]byte, error)) error {
	count, err := s.PageCount()
	if err != nil {
		return err
	}

	tmpPath := s.path + ".rewrite"
	tmp, err := osOpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create rewrite file: %w", err)
	}

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	buf := make([]byte, s.pageSize)
	for pgno := uint32(1); pgno <= count; pgno++ {
		if _, err := s.f.ReadAt(buf, s.offset(pgno)); err != nil && err != io.EOF {
			return fail(fmt.Errorf("failed to read page %d: %w", pgno, err))
		}
		out, err := fn(pgno, buf)
		if err != nil {
			return fail(err)
		}
		if len(out) != s.pageSize {
			return fail(fmt.Errorf("rewrite of page %d returned %d bytes, want %d", pgno, len(out), s.pageSize))
		}
		if _, err := tmp.WriteAt(out, s.offset(pgno)); err != nil {
			return fail(fmt.Errorf("failed to write page %d: %w", pgno, err))
		}
	}

	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync rewrite file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close rewrite file: %w", err)
	}

	// Atomic replace
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace page file: %w", err)
	}
	syncDir(filepath.Dir(s.path))

	// The old descriptor still points at the replaced inode
	s.f.Close()
	s.f = nil
	// The rewrite is committed; a failed reopen is retried on the next access
	s.handle()
	return nil
}

// syncDir makes a rename durable. Errors are ignored; some platforms cannot
// sync directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
