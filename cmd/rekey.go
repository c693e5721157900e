package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
	"github.com/illarion/pagecodec/internal/keyring"
	"github.com/illarion/pagecodec/internal/storage"
)

// Rekey re-encrypts the database under a new key
func Rekey(ctx context.Context, path string) {
	db, current, _ := OpenDB(path, core.Options{})
	defer db.Close()
	defer crypto.ClearBytes(current)

	fmt.Fprintln(os.Stderr, "New key:")
	newKey, err := core.ReadPasswordConfirm()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(newKey)

	if err := db.Rekey(ctx, newKey); err != nil {
		HandleError(err)
	}

	// Always try to update keyring if an entry exists
	id := db.ID()
	if keyring.HasCredential(id) {
		if err := keyring.SaveCredential(id, newKey); err == nil {
			fmt.Println("Keyring updated with new key")
		}
	}

	// Compact database after rewriting all pages
	if db.Backend() == storage.BackendBolt {
		if err := db.Compact(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
		}
	}

	fmt.Println("key changed successfully")
}
