package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
	"github.com/illarion/pagecodec/internal/keyring"
)

// KeyringSave saves the key to the OS keyring
func KeyringSave(path string) {
	// Prompt for key
	credential, err := GetCredential("Enter key: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(credential)

	// Verify key is correct
	db, err := core.Open(path, credential, core.Options{Logger: Logger})
	if err != nil {
		HandleError(err)
	}
	id := db.ID()
	db.Close()

	if err := keyring.SaveCredential(id, credential); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Key saved to keyring")
}

// KeyringDelete removes the key from the OS keyring
func KeyringDelete(path string) {
	status, err := core.Status(path)
	if err != nil {
		HandleError(err)
	}

	if !keyring.HasCredential(status.ID) {
		fmt.Println("No key stored in keyring")
		return
	}
	if err := keyring.DeleteCredential(status.ID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Key removed from keyring")
}

// KeyringStatus checks if a key is stored in the keyring
func KeyringStatus(path string) {
	status, err := core.Status(path)
	if err != nil {
		HandleError(err)
	}

	if keyring.HasCredential(status.ID) {
		fmt.Println("Key: stored in keyring")
	} else {
		fmt.Println("Key: not stored")
	}
}
