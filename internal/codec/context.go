package codec

import (
	"fmt"

	"github.com/illarion/pagecodec/internal/crypto"
)

// MaxPageSize is the largest page size a context will allocate a buffer for.
const MaxPageSize = 65536

// Store is the part of a paged store a codec needs. Implementations are used
// as map keys by Registry and must be comparable, typically pointers.
type Store interface {
	PageSize() int
	PageCount() (uint32, error)
}

// Context is the codec state of one attached database.
type Context struct {
	suite     crypto.Suite
	key       []byte
	salt      [crypto.SaltSize]byte
	saltKnown bool // generated for a new store, or read from page 1
	saltFixed bool // page 1 has been read or written; salt may no longer change
	buf       []byte
	store     Store
}

// NewContext derives the key from credential and allocates the page buffer
// for store. A store without pages gets a fresh random salt; for an existing
// store the salt is learned from the first decrypt of page 1.
func NewContext(store Store, credential []byte, suite crypto.Suite) (*Context, error) {
	ctx, err := newContext(store, credential, suite)
	if err != nil {
		return nil, err
	}

	pages, err := store.PageCount()
	if err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}
	if pages == 0 {
		salt, err := crypto.NewSalt()
		if err != nil {
			ctx.Destroy()
			return nil, err
		}
		ctx.salt = salt
		ctx.saltKnown = true
	}
	return ctx, nil
}

func newContext(store Store, credential []byte, suite crypto.Suite) (*Context, error) {
	if err := suite.Validate(); err != nil {
		return nil, err
	}

	pageSize := store.PageSize()
	if pageSize <= crypto.HeaderSize || pageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: page size %d", ErrAllocationFailure, pageSize)
	}

	key, err := suite.DeriveKey(credential)
	if err != nil {
		return nil, err
	}

	return &Context{
		suite: suite,
		key:   key,
		buf:   make([]byte, pageSize),
		store: store,
	}, nil
}

// Transform encrypts or decrypts one page. See the package documentation for
// the return convention. On failure the input is left untouched and nil is
// returned.
func (c *Context) Transform(pgno uint32, mode crypto.Mode, data []byte) ([]byte, error) {
	if c.key == nil {
		return nil, ErrNotAttached
	}
	if pageSize := c.store.PageSize(); pageSize != len(c.buf) {
		return nil, fmt.Errorf("%w: store page size %d, buffer %d", ErrBufferSizeMismatch, pageSize, len(c.buf))
	}
	if len(data) != len(c.buf) {
		return nil, fmt.Errorf("%w: page %d is %d bytes, want %d", ErrBufferSizeMismatch, pgno, len(data), len(c.buf))
	}
	if pgno == 0 {
		return nil, ErrInvalidPageNumber
	}
	if mode != crypto.Encrypt && mode != crypto.Decrypt {
		return nil, fmt.Errorf("%w: unknown mode %s", ErrCipherFailure, mode)
	}

	var err error
	if pgno == 1 {
		err = c.transformFirst(mode, data)
	} else {
		err = c.transformPage(pgno, mode, data)
	}
	if err != nil {
		crypto.ClearBytes(c.buf)
		return nil, err
	}

	if mode == crypto.Encrypt {
		return c.buf, nil
	}
	copy(data, c.buf)
	return data, nil
}

func (c *Context) transformPage(pgno uint32, mode crypto.Mode, data []byte) error {
	if !c.saltKnown {
		return ErrSaltUnknown
	}
	iv, err := c.suite.DeriveIV(c.salt, pgno)
	if err != nil {
		return err
	}
	return c.suite.Transform(c.key, iv, mode, c.buf, data)
}

// transformFirst handles page 1, whose first HeaderSize bytes stay in the
// clear: the salt on disk, the engine's file magic in memory, and eight bytes
// of engine header that pass through unchanged.
func (c *Context) transformFirst(mode crypto.Mode, data []byte) error {
	salt := c.salt
	if mode == crypto.Decrypt {
		copy(salt[:], data[:crypto.SaltSize])
		if c.saltFixed && salt != c.salt {
			return ErrSaltMismatch
		}
	} else if !c.saltKnown {
		return ErrSaltUnknown
	}

	iv, err := c.suite.DeriveIV(salt, 1)
	if err != nil {
		return err
	}

	copy(c.buf[:crypto.HeaderSize], data[:crypto.HeaderSize])
	if mode == crypto.Decrypt {
		copy(c.buf[:crypto.SaltSize], c.suite.FileHeader[:])
	} else {
		copy(c.buf[:crypto.SaltSize], salt[:])
	}

	if err := c.suite.Transform(c.key, iv, mode, c.buf[crypto.HeaderSize:], data[crypto.HeaderSize:]); err != nil {
		return err
	}

	c.salt = salt
	c.saltKnown = true
	c.saltFixed = true
	return nil
}

// Salt returns the database salt and whether it is known yet.
func (c *Context) Salt() ([crypto.SaltSize]byte, bool) {
	return c.salt, c.saltKnown
}

// PageSize returns the page size the context was allocated for.
func (c *Context) PageSize() int {
	return len(c.buf)
}

// KeySize returns the length of the derived key.
func (c *Context) KeySize() int {
	return c.suite.KeySize
}

// Suite returns the algorithms the context uses.
func (c *Context) Suite() crypto.Suite {
	return c.suite
}

// adoptSalt gives a context the salt of the context it replaces.
func (c *Context) adoptSalt(from *Context) {
	c.salt = from.salt
	c.saltKnown = from.saltKnown
}

// Destroy zeroes the key, salt and scratch buffer. The context is unusable
// afterwards.
func (c *Context) Destroy() {
	crypto.ClearBytes(c.key)
	crypto.ClearBytes(c.buf)
	crypto.ClearBytes(c.salt[:])
	c.key = nil
	c.saltKnown = false
	c.saltFixed = false
}
