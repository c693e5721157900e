package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/pagecodec/internal/codec"
	"github.com/illarion/pagecodec/internal/crypto"
	"github.com/illarion/pagecodec/internal/storage"
)

func testPath(t *testing.T, backend string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test-"+backend+".db")
}

func dataPage(size int, fill byte) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = fill + byte(i%7)
	}
	return p
}

func TestCreateOpen(t *testing.T) {
	for _, backend := range storage.Backends() {
		t.Run(backend, func(t *testing.T) {
			path := testPath(t, backend)
			key := []byte("correct horse")

			db, err := Create(path, key, Options{Backend: backend, PageSize: 1024})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			id := db.ID()
			if len(id) != 32 {
				t.Errorf("Expected 32 hex chars of id, got %q", id)
			}
			pgno, err := db.AppendPage(dataPage(1024, 'a'))
			if err != nil {
				t.Fatalf("AppendPage failed: %v", err)
			}
			if pgno != 2 {
				t.Errorf("Expected page 2, got %d", pgno)
			}
			if err := db.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			// Create again should fail
			if _, err := Create(path, key, Options{Backend: backend}); err != ErrAlreadyExists {
				t.Errorf("Expected ErrAlreadyExists, got %v", err)
			}

			db, err = Open(path, key, Options{})
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer db.Close()

			if db.Backend() != backend {
				t.Errorf("Expected backend %s, got %s", backend, db.Backend())
			}
			if db.PageSize() != 1024 {
				t.Errorf("Expected page size 1024, got %d", db.PageSize())
			}
			if db.ID() != id {
				t.Errorf("Expected id %s, got %s", id, db.ID())
			}
			got := make([]byte, 1024)
			if err := db.ReadPage(2, got); err != nil {
				t.Fatalf("ReadPage failed: %v", err)
			}
			if !bytes.Equal(got, dataPage(1024, 'a')) {
				t.Error("Page 2 content mismatch after reopen")
			}
		})
	}
}

func TestPagesEncryptedOnDisk(t *testing.T) {
	path := testPath(t, storage.BackendFile)
	db, err := Create(path, []byte("secret"), Options{PageSize: 512})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	plain := bytes.Repeat([]byte("PLAINTEXT"), 57)[:512]
	if _, err := db.AppendPage(plain); err != nil {
		t.Fatalf("AppendPage failed: %v", err)
	}
	db.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 1024 {
		t.Fatalf("Expected 1024 bytes on disk, got %d", len(raw))
	}
	if bytes.Contains(raw, []byte("PLAINTEXT")) {
		t.Error("Plaintext found on disk")
	}
	if bytes.Equal(raw[:16], crypto.FileMagic[:]) {
		t.Error("Page 1 should start with the salt, not the file magic")
	}
	// Engine header bytes 16-23 stay in the clear
	if !bytes.Equal(raw[16:24], []byte{0x02, 0x00, 1, 1, 0, 64, 32, 32}) {
		t.Errorf("Unexpected cleartext header % x", raw[16:24])
	}
}

func TestWrongKey(t *testing.T) {
	for _, backend := range storage.Backends() {
		t.Run(backend, func(t *testing.T) {
			path := testPath(t, backend)
			db, err := Create(path, []byte("right"), Options{Backend: backend})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			db.Close()

			if _, err := Open(path, []byte("wrong"), Options{}); !errors.Is(err, ErrWrongKey) {
				t.Errorf("Expected ErrWrongKey, got %v", err)
			}

			// The store must not stay locked after a failed open
			db, err = Open(path, []byte("right"), Options{})
			if err != nil {
				t.Fatalf("Open with right key failed: %v", err)
			}
			db.Close()
		})
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "missing.db"), []byte("k"), Options{}); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}

	empty := filepath.Join(dir, "empty.db")
	if err := os.WriteFile(empty, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(empty, []byte("k"), Options{}); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized for empty file, got %v", err)
	}

	if _, err := Open(empty, nil, Options{}); err != ErrKeyRequired {
		t.Errorf("Expected ErrKeyRequired, got %v", err)
	}
	if _, err := Create(filepath.Join(dir, "x.db"), []byte("k"), Options{Suite: "rot13"}); !errors.Is(err, crypto.ErrInvalidSuite) {
		t.Errorf("Expected ErrInvalidSuite, got %v", err)
	}
	if _, err := Create(filepath.Join(dir, "y.db"), []byte("k"), Options{PageSize: 1000}); !errors.Is(err, storage.ErrInvalidPageSize) {
		t.Errorf("Expected ErrInvalidPageSize, got %v", err)
	}
}

func TestOpenDetectsSuite(t *testing.T) {
	for _, name := range crypto.SuiteNames() {
		t.Run(name, func(t *testing.T) {
			path := testPath(t, storage.BackendFile)
			db, err := Create(path, []byte("k"), Options{Suite: name, PageSize: 512})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if _, err := db.AppendPage(dataPage(512, 'q')); err != nil {
				t.Fatalf("AppendPage failed: %v", err)
			}
			db.Close()

			db, err = Open(path, []byte("k"), Options{})
			if err != nil {
				t.Fatalf("Open without a suite failed: %v", err)
			}
			if db.Suite() != name {
				t.Errorf("Expected suite %s, got %s", name, db.Suite())
			}
			if n, err := db.Verify(context.Background()); err != nil || n != 2 {
				t.Errorf("Verify: %d pages, err %v", n, err)
			}
			db.Close()

			if _, err := Open(path, []byte("other"), Options{}); !errors.Is(err, ErrWrongKey) {
				t.Errorf("Expected ErrWrongKey for wrong key, got %v", err)
			}
		})
	}

	// A named suite is not second guessed
	path := testPath(t, "blake3")
	db, err := Create(path, []byte("k"), Options{Suite: "aes-256-cfb-blake3"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	db.Close()
	if _, err := Open(path, []byte("k"), Options{Suite: crypto.DefaultSuite.Name}); !errors.Is(err, ErrWrongKey) {
		t.Errorf("Expected ErrWrongKey for mismatched suite, got %v", err)
	}
}

func TestOpenPlainDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "notadb")
	if err := os.Mkdir(dir, 0700); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(dir, []byte("k"), Options{}); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized from Open, got %v", err)
	}
	if _, err := Status(dir); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized from Status, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Directory should stay empty, found %d entries", len(entries))
	}
}

func TestWritePage1Header(t *testing.T) {
	path := testPath(t, storage.BackendFile)
	db, err := Create(path, []byte("k"), Options{PageSize: 512})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer db.Close()

	page := make([]byte, 512)
	if err := db.ReadPage(1, page); err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	if !bytes.Equal(page[:16], crypto.FileMagic[:]) {
		t.Error("Decrypted page 1 should start with the file magic")
	}

	// Application data after the reserved area survives a round trip
	copy(page[100:], []byte("schema"))
	if err := db.WritePage(1, page); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}
	got := make([]byte, 512)
	if err := db.ReadPage(1, got); err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	if !bytes.Equal(got, page) {
		t.Error("Page 1 mismatch after rewrite")
	}

	bad := append([]byte(nil), page...)
	bad[80] = 1
	if err := db.WritePage(1, bad); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("Expected ErrInvalidHeader for reserved bytes, got %v", err)
	}
	bad = append([]byte(nil), page...)
	bad[0] = 'X'
	if err := db.WritePage(1, bad); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("Expected ErrInvalidHeader for magic, got %v", err)
	}
}

func TestRekey(t *testing.T) {
	for _, backend := range storage.Backends() {
		t.Run(backend, func(t *testing.T) {
			path := testPath(t, backend)
			ctx := context.Background()

			db, err := Create(path, []byte("old"), Options{Backend: backend, PageSize: 512})
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			for i := 0; i < 5; i++ {
				if _, err := db.AppendPage(dataPage(512, byte(i))); err != nil {
					t.Fatalf("AppendPage failed: %v", err)
				}
			}
			id := db.ID()

			if err := db.Rekey(ctx, []byte("new")); err != nil {
				t.Fatalf("Rekey failed: %v", err)
			}
			if db.ID() != id {
				t.Error("Rekey should keep the database id")
			}
			db.Close()

			if _, err := Open(path, []byte("old"), Options{}); !errors.Is(err, ErrWrongKey) {
				t.Errorf("Expected ErrWrongKey for old key, got %v", err)
			}
			db, err = Open(path, []byte("new"), Options{})
			if err != nil {
				t.Fatalf("Open with new key failed: %v", err)
			}
			defer db.Close()

			n, err := db.Verify(ctx)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if n != 6 {
				t.Errorf("Expected 6 pages verified, got %d", n)
			}
			got := make([]byte, 512)
			for i := 0; i < 5; i++ {
				if err := db.ReadPage(uint32(i+2), got); err != nil {
					t.Fatalf("ReadPage failed: %v", err)
				}
				if !bytes.Equal(got, dataPage(512, byte(i))) {
					t.Errorf("Page %d mismatch after rekey", i+2)
				}
			}
		})
	}
}

func TestRekeyCancelled(t *testing.T) {
	path := testPath(t, storage.BackendFile)
	db, err := Create(path, []byte("old"), Options{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.Rekey(ctx, []byte("new")); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if err := db.Rekey(context.Background(), nil); err != ErrKeyRequired {
		t.Errorf("Expected ErrKeyRequired, got %v", err)
	}
}

func TestHexKey(t *testing.T) {
	path := testPath(t, storage.BackendBolt)
	key := []byte("x'" + string(bytes.Repeat([]byte("ab"), 32)) + "'")

	db, err := Create(path, key, Options{Backend: storage.BackendBolt, AllowKeyExport: true})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer db.Close()

	raw, err := db.CredentialInfo()
	if err != nil {
		t.Fatalf("CredentialInfo failed: %v", err)
	}
	if !bytes.Equal(raw, bytes.Repeat([]byte{0xab}, 32)) {
		t.Errorf("Unexpected raw key % x", raw)
	}
}

func TestCredentialInfoDisabled(t *testing.T) {
	db, err := Create(testPath(t, storage.BackendFile), []byte("k"), Options{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer db.Close()

	if _, err := db.CredentialInfo(); !errors.Is(err, codec.ErrKeyExportDisabled) {
		t.Errorf("Expected ErrKeyExportDisabled, got %v", err)
	}
}

func TestSharedRegistry(t *testing.T) {
	reg := codec.NewRegistry()
	a, err := Create(testPath(t, "a"), []byte("one"), Options{Registry: reg})
	if err != nil {
		t.Fatalf("Create a failed: %v", err)
	}
	b, err := Create(testPath(t, "b"), []byte("two"), Options{Registry: reg, Backend: storage.BackendBolt})
	if err != nil {
		t.Fatalf("Create b failed: %v", err)
	}
	if a.ID() == b.ID() {
		t.Error("Databases should have different salts")
	}
	a.Close()
	if !reg.Attached(b.store) {
		t.Error("Closing a should not detach b")
	}
	b.Close()
}

func TestCompact(t *testing.T) {
	path := testPath(t, storage.BackendBolt)
	db, err := Create(path, []byte("k"), Options{Backend: storage.BackendBolt})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer db.Close()
	if _, err := db.AppendPage(dataPage(db.PageSize(), 'z')); err != nil {
		t.Fatal(err)
	}
	if err := db.Compact(context.Background()); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if _, err := db.Verify(context.Background()); err != nil {
		t.Fatalf("Verify after compact failed: %v", err)
	}

	fdb, err := Create(testPath(t, storage.BackendFile), []byte("k"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer fdb.Close()
	if err := fdb.Compact(context.Background()); err != ErrCompactBackend {
		t.Errorf("Expected ErrCompactBackend, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	path := testPath(t, storage.BackendFile)
	db, err := Create(path, []byte("k"), Options{PageSize: 2048})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	db.AppendPage(dataPage(2048, 1))
	id := db.ID()
	db.Close()

	status, err := Status(path)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Backend != storage.BackendFile {
		t.Errorf("Expected file backend, got %s", status.Backend)
	}
	if status.PageSize != 2048 || status.PageCount != 2 {
		t.Errorf("Expected 2 pages of 2048, got %d of %d", status.PageCount, status.PageSize)
	}
	if status.ID != id {
		t.Errorf("Expected id %s, got %s", id, status.ID)
	}
	if status.Size != 4096 {
		t.Errorf("Expected size 4096, got %d", status.Size)
	}

	if !status.Created.IsZero() {
		t.Error("File backend has no creation time")
	}

	if _, err := Status(filepath.Join(t.TempDir(), "none")); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestStatusAfterCompact(t *testing.T) {
	path := testPath(t, storage.BackendBolt)
	db, err := Create(path, []byte("k"), Options{Backend: storage.BackendBolt})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := db.Compact(context.Background()); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	status, err := Status(path)
	if err != nil {
		t.Fatalf("Status after compact failed: %v", err)
	}
	if status.Backend != storage.BackendBolt {
		t.Errorf("Expected bolt backend, got %s", status.Backend)
	}
	if status.Created.IsZero() {
		t.Error("Bolt status should carry a creation time")
	}
	if status.Modified.Before(status.Created) {
		t.Errorf("Modified %v before created %v", status.Modified, status.Created)
	}
}
