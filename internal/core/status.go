package core

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/illarion/pagecodec/internal/storage"
)

// StatusInfo describes a database as far as it can be known without a key.
type StatusInfo struct {
	Path      string
	Backend   string
	PageSize  int
	PageCount uint32
	ID        string
	Size      int64
	Modified  time.Time
	// Created is only recorded by the bolt backend.
	Created time.Time
}

// Status inspects the database at path (no key required). The id and page
// size come from the cleartext region of page 1.
func Status(path string) (*StatusInfo, error) {
	store, err := storage.OpenExisting(path)
	if err != nil {
		if errors.Is(err, storage.ErrStoreNotFound) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	count, err := store.PageCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotInitialized
	}

	page := make([]byte, store.PageSize())
	if err := store.ReadPage(1, page); err != nil {
		return nil, fmt.Errorf("failed to read page 1: %w", err)
	}

	status := &StatusInfo{
		Path:      path,
		Backend:   store.Backend(),
		PageSize:  store.PageSize(),
		PageCount: count,
		ID:        hex.EncodeToString(page[:16]),
	}
	status.Size, status.Modified = diskUsage(path)

	// Bolt keeps its own timestamps; they are not critical
	if bs, ok := store.(*storage.BoltStore); ok {
		if t, err := bs.Modified(); err == nil {
			status.Modified = t
		}
		if t, err := bs.Created(); err == nil {
			status.Created = t
		}
	}
	return status, nil
}

// diskUsage returns the total size and latest modification time under path.
func diskUsage(path string) (int64, time.Time) {
	var size int64
	var modified time.Time
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		if info.ModTime().After(modified) {
			modified = info.ModTime()
		}
		return nil
	})
	return size, modified
}
