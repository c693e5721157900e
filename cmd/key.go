package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
)

// Key prints the raw key of the database as an x'...' literal
func Key(path string, allowExport bool) {
	db, credential, _ := OpenDB(path, core.Options{AllowKeyExport: allowExport})
	defer db.Close()
	defer crypto.ClearBytes(credential)

	key, err := db.CredentialInfo()
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(key)

	fmt.Printf("x'%s'\n", hex.EncodeToString(key))
}
