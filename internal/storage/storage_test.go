package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func makePage1(pageSize int) []byte {
	p := make([]byte, pageSize)
	copy(p, "SQLite format 3\x00")
	ps := EncodePageSize(pageSize)
	copy(p[16:], ps[:])
	copy(p[18:], []byte{1, 1, 0, 64, 32, 32})
	return p
}

func makePage(pageSize int, seed byte) []byte {
	p := make([]byte, pageSize)
	for i := range p {
		p[i] = seed ^ byte(i)
	}
	return p
}

func storePath(t *testing.T, backend string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test-"+backend+".db")
}

func TestStoreRoundTrip(t *testing.T) {
	for _, backend := range Backends() {
		t.Run(backend, func(t *testing.T) {
			path := storePath(t, backend)

			s, err := Open(backend, path, 1024)
			if err != nil {
				t.Fatalf("Failed to open store: %v", err)
			}
			if s.Backend() != backend {
				t.Errorf("Backend mismatch: got %s, want %s", s.Backend(), backend)
			}

			count, err := s.PageCount()
			if err != nil {
				t.Fatalf("Failed to count pages: %v", err)
			}
			if count != 0 {
				t.Fatalf("New store should be empty, got %d pages", count)
			}

			pages := [][]byte{makePage1(1024), makePage(1024, 2), makePage(1024, 3)}
			for i, p := range pages {
				if err := s.WritePage(uint32(i+1), p); err != nil {
					t.Fatalf("Failed to write page %d: %v", i+1, err)
				}
			}

			// Overwrite in place
			pages[1] = makePage(1024, 9)
			if err := s.WritePage(2, pages[1]); err != nil {
				t.Fatalf("Failed to overwrite page 2: %v", err)
			}
			if err := s.Sync(); err != nil {
				t.Fatalf("Failed to sync: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Failed to close: %v", err)
			}

			// Reopen with a different page size: the stored one wins
			s, err = Open(backend, path, 4096)
			if err != nil {
				t.Fatalf("Failed to reopen store: %v", err)
			}
			defer s.Close()

			if s.PageSize() != 1024 {
				t.Errorf("Page size mismatch: got %d, want 1024", s.PageSize())
			}
			count, err = s.PageCount()
			if err != nil {
				t.Fatalf("Failed to count pages: %v", err)
			}
			if count != 3 {
				t.Fatalf("Page count mismatch: got %d, want 3", count)
			}

			buf := make([]byte, 1024)
			for i, want := range pages {
				if err := s.ReadPage(uint32(i+1), buf); err != nil {
					t.Fatalf("Failed to read page %d: %v", i+1, err)
				}
				if !bytes.Equal(buf, want) {
					t.Errorf("Page %d content mismatch", i+1)
				}
			}
		})
	}
}

func TestStoreAccessErrors(t *testing.T) {
	for _, backend := range Backends() {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(backend, storePath(t, backend), 512)
			if err != nil {
				t.Fatalf("Failed to open store: %v", err)
			}
			defer s.Close()

			if err := s.WritePage(1, makePage1(512)); err != nil {
				t.Fatalf("Failed to write page 1: %v", err)
			}

			buf := make([]byte, 512)
			if err := s.ReadPage(2, buf); !errors.Is(err, ErrPageNotFound) {
				t.Errorf("Expected ErrPageNotFound reading past end, got %v", err)
			}
			if err := s.ReadPage(0, buf); !errors.Is(err, ErrPageNotFound) {
				t.Errorf("Expected ErrPageNotFound for page 0, got %v", err)
			}
			if err := s.WritePage(3, makePage(512, 1)); !errors.Is(err, ErrPageNotFound) {
				t.Errorf("Expected ErrPageNotFound writing with a gap, got %v", err)
			}
			if err := s.WritePage(2, make([]byte, 100)); err == nil {
				t.Error("Expected error writing a short page")
			}
			if err := s.ReadPage(1, make([]byte, 100)); err == nil {
				t.Error("Expected error reading into a short buffer")
			}
		})
	}
}

func TestStoreRewrite(t *testing.T) {
	for _, backend := range Backends() {
		t.Run(backend, func(t *testing.T) {
			path := storePath(t, backend)
			s, err := Open(backend, path, 512)
			if err != nil {
				t.Fatalf("Failed to open store: %v", err)
			}
			defer func() { s.Close() }()

			pages := [][]byte{makePage1(512), makePage(512, 2), makePage(512, 3)}
			for i, p := range pages {
				if err := s.WritePage(uint32(i+1), p); err != nil {
					t.Fatalf("Failed to write page %d: %v", i+1, err)
				}
			}

			var order []uint32
			err = s.Rewrite(func(pgno uint32, page []byte) ([]byte, error) {
				order = append(order, pgno)
				out := append([]byte(nil), page...)
				if pgno > 1 {
					for i := range out {
						out[i] ^= 0xff
					}
				}
				return out, nil
			})
			if err != nil {
				t.Fatalf("Rewrite failed: %v", err)
			}
			if fmt.Sprint(order) != "[1 2 3]" {
				t.Errorf("Rewrite order mismatch: got %v", order)
			}

			buf := make([]byte, 512)
			for i, p := range pages {
				want := append([]byte(nil), p...)
				if i > 0 {
					for j := range want {
						want[j] ^= 0xff
					}
				}
				if err := s.ReadPage(uint32(i+1), buf); err != nil {
					t.Fatalf("Failed to read page %d: %v", i+1, err)
				}
				if !bytes.Equal(buf, want) {
					t.Errorf("Page %d not rewritten", i+1)
				}
			}

			// Store still writable after the rewrite
			if err := s.WritePage(4, makePage(512, 4)); err != nil {
				t.Fatalf("Failed to write after rewrite: %v", err)
			}
		})
	}
}

func TestStoreRewriteFailureLeavesPages(t *testing.T) {
	for _, backend := range Backends() {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(backend, storePath(t, backend), 512)
			if err != nil {
				t.Fatalf("Failed to open store: %v", err)
			}
			defer s.Close()

			pages := [][]byte{makePage1(512), makePage(512, 2), makePage(512, 3)}
			for i, p := range pages {
				if err := s.WritePage(uint32(i+1), p); err != nil {
					t.Fatalf("Failed to write page %d: %v", i+1, err)
				}
			}

			boom := errors.New("boom")
			err = s.Rewrite(func(pgno uint32, page []byte) ([]byte, error) {
				if pgno == 3 {
					return nil, boom
				}
				return make([]byte, 512), nil
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Expected rewrite error, got %v", err)
			}

			buf := make([]byte, 512)
			for i, want := range pages {
				if err := s.ReadPage(uint32(i+1), buf); err != nil {
					t.Fatalf("Failed to read page %d: %v", i+1, err)
				}
				if !bytes.Equal(buf, want) {
					t.Errorf("Page %d changed by a failed rewrite", i+1)
				}
			}
		})
	}
}

func TestOpenInvalidPageSize(t *testing.T) {
	for _, backend := range Backends() {
		for _, size := range []int{0, 100, 1000, 131072} {
			_, err := Open(backend, storePath(t, backend), size)
			if !errors.Is(err, ErrInvalidPageSize) {
				t.Errorf("%s: expected ErrInvalidPageSize for %d, got %v", backend, size, err)
			}
		}
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("tape", storePath(t, "tape"), 4096); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}
}

func TestFileStoreRejectsCorruptHeader(t *testing.T) {
	path := storePath(t, BackendFile)
	bad := makePage1(1024)
	bad[16], bad[17] = 0x03, 0x00 // 768 is not a power of two
	if err := os.WriteFile(path, bad, 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := OpenFile(path, 1024); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("Expected ErrInvalidPageSize, got %v", err)
	}

	// Truncated trailing page
	good := append(makePage1(1024), make([]byte, 10)...)
	if err := os.WriteFile(path, good, 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := OpenFile(path, 1024); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("Expected ErrInvalidPageSize for partial page, got %v", err)
	}
}

func TestPageSizeEncoding(t *testing.T) {
	for _, n := range []int{512, 1024, 4096, 32768, 65536} {
		enc := EncodePageSize(n)
		hdr := make([]byte, 18)
		copy(hdr[16:], enc[:])
		got, err := PageSizeFromHeader(hdr)
		if err != nil {
			t.Fatalf("PageSizeFromHeader(%d) failed: %v", n, err)
		}
		if got != n {
			t.Errorf("Page size mismatch: got %d, want %d", got, n)
		}
	}
	if enc := EncodePageSize(65536); enc != [2]byte{0, 1} {
		t.Errorf("65536 should encode as 1, got %v", enc)
	}
	if _, err := PageSizeFromHeader(make([]byte, 4)); !errors.Is(err, ErrInvalidPageSize) {
		t.Errorf("Expected ErrInvalidPageSize for short header, got %v", err)
	}
}

func TestDetectBackend(t *testing.T) {
	if got := DetectBackend(filepath.Join(t.TempDir(), "missing")); got != "" {
		t.Errorf("Expected empty backend for missing path, got %q", got)
	}
	if got := DetectBackend(t.TempDir()); got != "" {
		t.Errorf("Expected empty backend for a plain directory, got %q", got)
	}

	for _, backend := range Backends() {
		path := storePath(t, backend)
		s, err := Open(backend, path, 1024)
		if err != nil {
			t.Fatalf("Failed to open %s store: %v", backend, err)
		}
		if err := s.WritePage(1, makePage1(1024)); err != nil {
			t.Fatalf("Failed to write page: %v", err)
		}
		s.Close()

		if got := DetectBackend(path); got != backend {
			t.Errorf("DetectBackend mismatch: got %q, want %q", got, backend)
		}
	}
}

func TestBoltTimestampsAndCompact(t *testing.T) {
	path := storePath(t, BackendBolt)
	s, err := OpenBolt(path, 4096)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer s.Close()

	created, err := s.Created()
	if err != nil {
		t.Fatalf("Failed to get created time: %v", err)
	}

	for i := uint32(1); i <= 32; i++ {
		if err := s.WritePage(i, makePage(4096, byte(i))); err != nil {
			t.Fatalf("Failed to write page %d: %v", i, err)
		}
	}
	// Rewriting every page leaves freed pages behind
	err = s.Rewrite(func(pgno uint32, page []byte) ([]byte, error) {
		return append([]byte(nil), page...), nil
	})
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	modified, err := s.Modified()
	if err != nil {
		t.Fatalf("Failed to get modified time: %v", err)
	}
	if modified.Before(created) {
		t.Errorf("Modified %v before created %v", modified, created)
	}

	if err := s.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	count, err := s.PageCount()
	if err != nil {
		t.Fatalf("Failed to count pages: %v", err)
	}
	if count != 32 {
		t.Errorf("Page count after compact: got %d, want 32", count)
	}
	buf := make([]byte, 4096)
	if err := s.ReadPage(17, buf); err != nil {
		t.Fatalf("Failed to read page after compact: %v", err)
	}
	if !bytes.Equal(buf, makePage(4096, 17)) {
		t.Error("Page content changed by compact")
	}
	if _, err := os.Stat(path + ".compact"); !os.IsNotExist(err) {
		t.Error("Temporary compact file should be removed")
	}
}

func TestOpenExisting(t *testing.T) {
	for _, backend := range Backends() {
		t.Run(backend, func(t *testing.T) {
			path := storePath(t, backend)
			s, err := Open(backend, path, 2048)
			if err != nil {
				t.Fatalf("Failed to open %s store: %v", backend, err)
			}
			if err := s.WritePage(1, makePage1(2048)); err != nil {
				t.Fatalf("Failed to write page: %v", err)
			}
			s.Close()

			s, err = OpenExisting(path)
			if err != nil {
				t.Fatalf("OpenExisting failed: %v", err)
			}
			defer s.Close()
			if s.Backend() != backend {
				t.Errorf("Backend mismatch: got %q, want %q", s.Backend(), backend)
			}
			if s.PageSize() != 2048 {
				t.Errorf("Page size mismatch: got %d, want 2048", s.PageSize())
			}
		})
	}
}

func TestOpenExistingCreatesNothing(t *testing.T) {
	dir := t.TempDir()

	if _, err := OpenExisting(dir); !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound for a plain directory, got %v", err)
	}
	missing := filepath.Join(dir, "missing.db")
	if _, err := OpenExisting(missing); !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound for a missing file, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected directory to stay empty, found %d entries", len(entries))
	}
}

func TestFileRewriteCommitsAtRename(t *testing.T) {
	path := storePath(t, BackendFile)
	s, err := OpenFile(path, 512)
	if err != nil {
		t.Fatalf("Failed to open page file: %v", err)
	}
	defer s.Close()
	if err := s.WritePage(1, makePage1(512)); err != nil {
		t.Fatal(err)
	}
	if err := s.WritePage(2, makePage(512, 1)); err != nil {
		t.Fatal(err)
	}

	// Fail the reopen that follows the rename, once
	failed := false
	osOpenFile = func(name string, flag int, perm os.FileMode) (*os.File, error) {
		if name == path && flag == os.O_RDWR && !failed {
			failed = true
			return nil, errors.New("too many open files")
		}
		return os.OpenFile(name, flag, perm)
	}
	defer func() { osOpenFile = os.OpenFile }()

	err = s.Rewrite(func(pgno uint32, page []byte) ([]byte, error) {
		if pgno == 1 {
			return append([]byte(nil), page...), nil
		}
		return makePage(512, 9), nil
	})
	if err != nil {
		t.Fatalf("Rewrite should succeed once the rename is done: %v", err)
	}
	if !failed {
		t.Fatal("Expected the reopen to be attempted")
	}

	got := make([]byte, 512)
	if err := s.ReadPage(2, got); err != nil {
		t.Fatalf("ReadPage after lazy reopen failed: %v", err)
	}
	if !bytes.Equal(got, makePage(512, 9)) {
		t.Error("Expected rewritten content after lazy reopen")
	}
}
