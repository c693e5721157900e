package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
)

// Verify decrypts every page of the database
func Verify(ctx context.Context, path string) {
	db, credential, source := OpenDB(path, core.Options{})
	defer db.Close()
	defer crypto.ClearBytes(credential)

	n, err := db.Verify(ctx)
	if err != nil {
		HandleError(fmt.Errorf("page %d: %w", n+1, err))
	}
	fmt.Printf("✓ %d pages decrypted\n", n)

	if source == SourcePrompt {
		OfferToSaveCredential(db.ID(), credential)
	}
}
