package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
)

// Compact compacts a bolt database to reclaim unused space
func Compact(ctx context.Context, path string) {
	before, err := core.Status(path)
	if err != nil {
		HandleError(err)
	}

	db, credential, _ := OpenDB(path, core.Options{})
	defer crypto.ClearBytes(credential)

	after, err := compactDB(ctx, path, db)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Compacted: %s -> %s\n", formatSize(before.Size), formatSize(after))
}

// compactDB compacts and closes db, then returns the size on disk. Bolt holds
// its file lock until Close, so the size can only be read afterwards.
func compactDB(ctx context.Context, path string, db *core.DB) (int64, error) {
	err := db.Compact(ctx)
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}

	status, err := core.Status(path)
	if err != nil {
		return 0, err
	}
	return status.Size, nil
}
