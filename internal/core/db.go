package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/illarion/pagecodec/internal/codec"
	"github.com/illarion/pagecodec/internal/crypto"
	"github.com/illarion/pagecodec/internal/storage"
)

var (
	ErrNotInitialized  = errors.New("database not initialized")
	ErrAlreadyExists   = errors.New("database already exists")
	ErrWrongKey        = errors.New("wrong key or corrupt database")
	ErrInvalidHeader   = errors.New("invalid page 1 header")
	ErrKeyRequired     = errors.New("key required")
	ErrCompactBackend  = errors.New("compact is only supported by the bolt backend")
	ErrDifferentLayout = errors.New("databases have different page sizes")
)

// Options configures Create and Open.
type Options struct {
	// Backend selects the store for Create. Open detects it from disk and
	// ignores this field unless detection finds nothing.
	Backend string
	// PageSize is used by Create. Zero means storage.DefaultPageSize.
	PageSize int
	// Suite names the algorithm suite. Empty means the default suite.
	Suite string
	// AllowKeyExport lets CredentialInfo return the raw key.
	AllowKeyExport bool
	Logger         *slog.Logger
	// Registry is shared between DBs when set; otherwise each DB gets its own.
	// A shared registry's suite and export settings take precedence.
	Registry *codec.Registry
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) registry() (*codec.Registry, crypto.Suite, error) {
	suite, err := crypto.SuiteByName(o.Suite)
	if err != nil {
		return nil, crypto.Suite{}, err
	}
	if o.Registry != nil {
		return o.Registry, suite, nil
	}
	reg := codec.NewRegistry(
		codec.WithSuite(suite),
		codec.WithKeyExport(o.AllowKeyExport),
		codec.WithLogger(o.logger()),
	)
	return reg, suite, nil
}

// DB is an encrypted paged database.
type DB struct {
	mu     sync.Mutex
	store  storage.Store
	reg    *codec.Registry
	suite  crypto.Suite
	logger *slog.Logger
}

// Create makes a new database at path holding one empty page.
func Create(path string, credential []byte, opts Options) (*DB, error) {
	if len(credential) == 0 {
		return nil, ErrKeyRequired
	}
	if _, err := os.Stat(path); err == nil {
		return nil, ErrAlreadyExists
	}
	reg, suite, err := opts.registry()
	if err != nil {
		return nil, err
	}

	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = storage.DefaultPageSize
	}
	if !storage.ValidPageSize(pageSize) {
		return nil, fmt.Errorf("%w: %d", storage.ErrInvalidPageSize, pageSize)
	}

	store, err := storage.Open(opts.Backend, path, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	db := &DB{store: store, reg: reg, suite: suite, logger: opts.logger()}

	if _, err := reg.Attach(store, credential); err != nil {
		store.Close()
		removeStore(path)
		return nil, fmt.Errorf("failed to attach codec: %w", err)
	}
	if err := db.writePage(1, NewPage1(pageSize, suite)); err != nil {
		db.Close()
		removeStore(path)
		return nil, err
	}
	if err := store.Sync(); err != nil {
		db.Close()
		removeStore(path)
		return nil, fmt.Errorf("failed to sync store: %w", err)
	}

	db.logger.Info("database created",
		"path", path,
		"backend", store.Backend(),
		"page_size", pageSize,
		"id", db.ID())
	return db, nil
}

// Open attaches to an existing database and checks credential against page 1.
// When neither opts.Suite nor opts.Registry is set, every known suite is tried
// in turn: all suites share the file header, so only page 1 can tell them apart.
func Open(path string, credential []byte, opts Options) (*DB, error) {
	if len(credential) == 0 {
		return nil, ErrKeyRequired
	}
	if _, err := crypto.SuiteByName(opts.Suite); err != nil {
		return nil, err
	}

	store, err := storage.OpenExisting(path)
	if err != nil {
		if errors.Is(err, storage.ErrStoreNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	count, err := store.PageCount()
	if err != nil {
		store.Close()
		return nil, err
	}
	if count == 0 {
		store.Close()
		return nil, ErrNotInitialized
	}

	suites := []string{opts.Suite}
	if opts.Suite == "" && opts.Registry == nil {
		suites = crypto.SuiteNames()
	}

	var lastErr error
	for _, name := range suites {
		attempt := opts
		attempt.Suite = name
		db, err := attachExisting(store, credential, attempt)
		if err == nil {
			db.logger.Debug("database opened",
				"path", path,
				"backend", store.Backend(),
				"suite", db.suite.Name,
				"pages", count)
			return db, nil
		}
		if !errors.Is(err, ErrWrongKey) {
			store.Close()
			return nil, err
		}
		lastErr = err
	}
	store.Close()
	return nil, lastErr
}

// attachExisting attaches a codec for opts' suite and verifies page 1. On
// failure the codec is detached again and store is left open.
func attachExisting(store storage.Store, credential []byte, opts Options) (*DB, error) {
	reg, suite, err := opts.registry()
	if err != nil {
		return nil, err
	}
	if _, err := reg.Attach(store, credential); err != nil {
		return nil, fmt.Errorf("failed to attach codec: %w", err)
	}
	db := &DB{store: store, reg: reg, suite: suite, logger: opts.logger()}
	if err := db.verifyKey(); err != nil {
		reg.Detach(store)
		return nil, err
	}
	return db, nil
}

// Suite returns the name of the algorithm suite the database was opened with.
func (db *DB) Suite() string {
	return db.suite.Name
}

func removeStore(path string) {
	os.RemoveAll(path)
}

// verifyKey decrypts page 1 and checks the engine header.
func (db *DB) verifyKey() error {
	page := make([]byte, db.store.PageSize())
	if err := db.readPage(1, page); err != nil {
		if errors.Is(err, codec.ErrSaltMismatch) {
			return ErrWrongKey
		}
		return err
	}
	defer crypto.ClearBytes(page)
	if err := checkPage1(page, db.suite); err != nil {
		return fmt.Errorf("%w: %v", ErrWrongKey, err)
	}
	return nil
}

func (db *DB) readPage(pgno uint32, buf []byte) error {
	if err := db.store.ReadPage(pgno, buf); err != nil {
		return fmt.Errorf("failed to read page %d: %w", pgno, err)
	}
	if _, err := db.reg.Transform(db.store, pgno, crypto.Decrypt, buf); err != nil {
		crypto.ClearBytes(buf)
		return fmt.Errorf("failed to decrypt page %d: %w", pgno, err)
	}
	return nil
}

func (db *DB) writePage(pgno uint32, data []byte) error {
	if pgno == 1 {
		if err := checkPage1(data, db.suite); err != nil {
			return err
		}
	}
	// The encrypted buffer belongs to the codec; write it out before it is reused.
	return db.reg.Do(db.store, func(c *codec.Context) error {
		out, err := c.Transform(pgno, crypto.Encrypt, data)
		if err != nil {
			return fmt.Errorf("failed to encrypt page %d: %w", pgno, err)
		}
		if err := db.store.WritePage(pgno, out); err != nil {
			return fmt.Errorf("failed to write page %d: %w", pgno, err)
		}
		return nil
	})
}

// ReadPage decrypts page pgno into buf, which must be one page long.
func (db *DB) ReadPage(pgno uint32, buf []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.readPage(pgno, buf)
}

// WritePage encrypts data and stores it as page pgno. pgno may be one past
// the last page. data is not modified. Page 1 must keep a valid engine header.
func (db *DB) WritePage(pgno uint32, data []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.writePage(pgno, data)
}

// AppendPage stores data as a new last page and returns its number.
func (db *DB) AppendPage(data []byte) (uint32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	count, err := db.store.PageCount()
	if err != nil {
		return 0, err
	}
	if err := db.writePage(count+1, data); err != nil {
		return 0, err
	}
	return count + 1, nil
}

// PageCount returns the number of pages.
func (db *DB) PageCount() (uint32, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.store.PageCount()
}

// PageSize returns the page size in bytes.
func (db *DB) PageSize() int {
	return db.store.PageSize()
}

// Backend returns the storage backend name.
func (db *DB) Backend() string {
	return db.store.Backend()
}

// Path returns the location of the database.
func (db *DB) Path() string {
	return db.store.Path()
}

// ID identifies the database by its salt, in hex. It is stable across rekeys.
func (db *DB) ID() string {
	var id string
	db.reg.Do(db.store, func(c *codec.Context) error {
		if salt, ok := c.Salt(); ok {
			id = hex.EncodeToString(salt[:])
		}
		return nil
	})
	return id
}

// Sync flushes the store to stable storage.
func (db *DB) Sync() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.store.Sync()
}

// Rekey re-encrypts every page under a key derived from credential. On
// failure the database is unchanged and the old key stays in effect.
func (db *DB) Rekey(ctx context.Context, credential []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(credential) == 0 {
		return ErrKeyRequired
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.reg.Rekey(ctx, db.store, credential); err != nil {
		return err
	}
	if err := db.verifyKey(); err != nil {
		return fmt.Errorf("rekey verification failed: %w", err)
	}
	return nil
}

// Verify decrypts every page and checks the page 1 header. It returns the
// number of pages checked.
func (db *DB) Verify(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	count, err := db.store.PageCount()
	if err != nil {
		return 0, err
	}
	page := make([]byte, db.store.PageSize())
	defer crypto.ClearBytes(page)

	for pgno := uint32(1); pgno <= count; pgno++ {
		if err := ctx.Err(); err != nil {
			return int(pgno - 1), err
		}
		if err := db.readPage(pgno, page); err != nil {
			return int(pgno - 1), err
		}
		if pgno == 1 {
			if err := checkPage1(page, db.suite); err != nil {
				return 0, err
			}
		}
	}
	return int(count), nil
}

// CredentialInfo returns a copy of the raw key. It fails with
// codec.ErrKeyExportDisabled unless key export was allowed.
func (db *DB) CredentialInfo() ([]byte, error) {
	key, _, ok, err := db.reg.CredentialInfo(db.store)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, codec.ErrNotAttached
	}
	return key, nil
}

// Compact rewrites a bolt-backed database without free space. Ciphertext is
// copied as is.
func (db *DB) Compact(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	bs, ok := db.store.(*storage.BoltStore)
	if !ok {
		return ErrCompactBackend
	}
	return bs.Compact()
}

// Close detaches the codec, zeroing the key, and closes the store.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.store == nil {
		return nil
	}
	if err := db.reg.Detach(db.store); err != nil && !errors.Is(err, codec.ErrNotAttached) {
		db.logger.Warn("failed to detach codec", "error", err)
	}
	err := db.store.Close()
	db.store = nil
	return err
}
