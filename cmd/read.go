package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
)

// Read decrypts one page and writes it to out, or stdout if out is empty
func Read(path string, pgno uint32, asHex bool, out string) {
	db, credential, _ := OpenDB(path, core.Options{})
	defer db.Close()
	defer crypto.ClearBytes(credential)

	page := make([]byte, db.PageSize())
	defer crypto.ClearBytes(page)
	if err := db.ReadPage(pgno, page); err != nil {
		HandleError(err)
	}

	data := page
	if asHex {
		data = []byte(hex.Dump(page))
	}

	if out == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			HandleError(err)
		}
		return
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		HandleError(fmt.Errorf("failed to write %s: %w", out, err))
	}
	fmt.Fprintf(os.Stderr, "page %d -> %s\n", pgno, out)
}
