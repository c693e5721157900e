package codec

import (
	"errors"

	"github.com/illarion/pagecodec/internal/crypto"
)

var (
	ErrInvalidKeyFormat   = crypto.ErrInvalidKeyFormat
	ErrCipherFailure      = crypto.ErrCipherFailure
	ErrBufferSizeMismatch = errors.New("page buffer size mismatch")
	ErrAllocationFailure  = errors.New("cannot allocate page buffer")
	ErrAlreadyAttached    = errors.New("codec already attached")
	ErrNotAttached        = errors.New("codec not attached")
	ErrUnsupportedRekey   = errors.New("rekey not supported by store")
	ErrSaltUnknown        = errors.New("database salt not yet read from page 1")
	ErrSaltMismatch       = errors.New("page 1 salt does not match database salt")
	ErrInvalidPageNumber  = errors.New("invalid page number")
	ErrKeyExportDisabled  = errors.New("key export disabled")
)
