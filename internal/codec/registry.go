package codec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/illarion/pagecodec/internal/crypto"
)

// Rewriter is implemented by stores that can replace every page in a single
// atomic, crash-safe step. Rewrite must call fn for each page in ascending
// page number order, starting at page 1, and must leave the store unchanged
// if fn or the write fails.
type Rewriter interface {
	Rewrite(fn func(pgno uint32, page []byte) ([]byte, error)) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithSuite sets the algorithms used for contexts created by Attach.
func WithSuite(s crypto.Suite) Option {
	return func(r *Registry) {
		r.suite = s
	}
}

// WithKeyExport allows CredentialInfo to return raw key bytes.
func WithKeyExport(allow bool) Option {
	return func(r *Registry) {
		r.allowExport = allow
	}
}

// WithLogger sets the logger for lifecycle events. Key material is never logged.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

type entry struct {
	mu  sync.Mutex
	ctx *Context
}

// Registry maps store handles to their codec contexts. It is safe for
// concurrent use: calls for different stores run in parallel, calls for the
// same store are serialised.
type Registry struct {
	mu          sync.RWMutex
	entries     map[Store]*entry
	suite       crypto.Suite
	allowExport bool
	logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[Store]*entry),
		suite:   crypto.DefaultSuite,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach creates a context for store from credential. It must be called
// before any page of the store is transformed.
func (r *Registry) Attach(store Store, credential []byte) (*Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[store]; ok {
		return nil, ErrAlreadyAttached
	}

	ctx, err := NewContext(store, credential, r.suite)
	if err != nil {
		return nil, err
	}
	r.entries[store] = &entry{ctx: ctx}

	_, known := ctx.Salt()
	r.logger.Debug("codec attached",
		"suite", r.suite.Name,
		"page_size", ctx.PageSize(),
		"new_salt", known)
	return ctx, nil
}

// Detach destroys the context of store, zeroing its key.
func (r *Registry) Detach(store Store) error {
	r.mu.Lock()
	e, ok := r.entries[store]
	delete(r.entries, store)
	r.mu.Unlock()

	if !ok {
		return ErrNotAttached
	}

	e.mu.Lock()
	e.ctx.Destroy()
	e.mu.Unlock()

	r.logger.Debug("codec detached")
	return nil
}

// Attached reports whether store has a context.
func (r *Registry) Attached(store Store) bool {
	return r.lookup(store) != nil
}

func (r *Registry) lookup(store Store) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[store]
}

// Do runs fn with the context of store while holding the store's lock. Use it
// when the caller must consume the buffer returned by an Encrypt before the
// next transform can reuse it.
func (r *Registry) Do(store Store, fn func(*Context) error) error {
	e := r.lookup(store)
	if e == nil {
		return ErrNotAttached
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.ctx)
}

// Transform runs one page transform for store. The buffer returned by an
// Encrypt is only valid until the next call for the same store; use Do to
// keep it stable while writing it out.
func (r *Registry) Transform(store Store, pgno uint32, mode crypto.Mode, data []byte) ([]byte, error) {
	var out []byte
	err := r.Do(store, func(ctx *Context) error {
		var err error
		out, err = ctx.Transform(pgno, mode, data)
		return err
	})
	return out, err
}

// CredentialInfo returns a copy of the key attached to store and its length.
// ok is false if no codec is attached. Unless the registry was created with
// WithKeyExport(true) it fails with ErrKeyExportDisabled.
func (r *Registry) CredentialInfo(store Store) (key []byte, keyLen int, ok bool, err error) {
	e := r.lookup(store)
	if e == nil {
		return nil, 0, false, nil
	}
	if !r.allowExport {
		return nil, 0, true, ErrKeyExportDisabled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.key == nil {
		return nil, 0, false, nil
	}
	key = append([]byte(nil), e.ctx.key...)
	return key, len(key), true, nil
}

// Rekey re-encrypts every page of store under a key derived from credential.
// The salt is kept. The store must implement Rewriter; the rewrite is all or
// nothing, and on failure both the store and the current key stay in effect.
// ctx is checked before each page.
func (r *Registry) Rekey(ctx context.Context, store Store, credential []byte) error {
	e := r.lookup(store)
	if e == nil {
		return ErrNotAttached
	}
	rw, ok := store.(Rewriter)
	if !ok {
		return ErrUnsupportedRekey
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.ctx
	next, err := newContext(store, credential, old.suite)
	if err != nil {
		return err
	}
	next.adoptSalt(old)

	pages := 0
	err = rw.Rewrite(func(pgno uint32, page []byte) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plain := append([]byte(nil), page...)
		defer crypto.ClearBytes(plain)

		if _, err := old.Transform(pgno, crypto.Decrypt, plain); err != nil {
			return nil, fmt.Errorf("decrypt page %d: %w", pgno, err)
		}
		if pgno == 1 {
			next.adoptSalt(old)
		}
		out, err := next.Transform(pgno, crypto.Encrypt, plain)
		if err != nil {
			return nil, fmt.Errorf("encrypt page %d: %w", pgno, err)
		}
		pages++
		return append([]byte(nil), out...), nil
	})
	if err != nil {
		next.Destroy()
		return fmt.Errorf("rekey failed: %w", err)
	}

	e.ctx = next
	old.Destroy()

	r.logger.Info("codec rekeyed", "pages", pages, "suite", next.suite.Name)
	return nil
}
