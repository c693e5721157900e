package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
)

// Init creates a new encrypted database
func Init(path string, opts core.Options) {
	if _, err := os.Stat(path); err == nil {
		HandleError(core.ErrAlreadyExists)
	}

	// Read key (env var or prompt with confirmation)
	credential, err := GetCredentialForInit()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(credential)

	opts.Logger = Logger
	db, err := core.Create(path, credential, opts)
	if err != nil {
		HandleError(err)
	}
	defer db.Close()

	fmt.Printf("✓ Initialized %s (%s, %d-byte pages)\n", path, db.Backend(), db.PageSize())
	fmt.Printf("  id: %s\n", db.ID())
}
