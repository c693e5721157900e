package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
)

// Write encrypts one page read from in (stdin if empty) and stores it as
// page pgno. pgno 0 appends a new page.
func Write(path string, pgno uint32, in string) {
	db, credential, source := OpenDB(path, core.Options{})
	defer db.Close()
	defer crypto.ClearBytes(credential)

	var (
		data []byte
		err  error
	)
	if in == "" {
		data, err = io.ReadAll(io.LimitReader(os.Stdin, int64(db.PageSize())+1))
	} else {
		data, err = os.ReadFile(in)
	}
	if err != nil {
		HandleError(fmt.Errorf("failed to read page data: %w", err))
	}
	defer crypto.ClearBytes(data)

	if len(data) != db.PageSize() {
		fmt.Fprintf(os.Stderr, "Error: page data is %d bytes, page size is %d\n", len(data), db.PageSize())
		os.Exit(1)
	}

	if pgno == 0 {
		pgno, err = db.AppendPage(data)
	} else {
		err = db.WritePage(pgno, data)
	}
	if err != nil {
		HandleError(err)
	}
	if err := db.Sync(); err != nil {
		HandleError(err)
	}

	fmt.Printf("wrote page %d\n", pgno)

	if source == SourcePrompt {
		OfferToSaveCredential(db.ID(), credential)
	}
}
