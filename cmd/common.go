package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/illarion/pagecodec/internal/codec"
	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
	"github.com/illarion/pagecodec/internal/keyring"
	"github.com/illarion/pagecodec/internal/storage"
)

// CredentialSource records where a credential came from
type CredentialSource int

const (
	SourceEnv CredentialSource = iota
	SourceKeyring
	SourcePrompt
)

// Logger is used for core and codec events. main replaces it after parsing -v.
var Logger = slog.Default()

// GetCredential retrieves the key from environment or prompts user
// The caller is responsible for calling crypto.ClearBytes on the returned key
func GetCredential(prompt string) ([]byte, error) {
	// Try environment variable first
	credential := core.GetCredentialFromEnv()
	if credential != nil {
		return credential, nil
	}

	// Prompt user
	credential, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	return credential, nil
}

// GetCredentialForInit retrieves the key for init command
// Checks environment variable first, then prompts with confirmation
func GetCredentialForInit() ([]byte, error) {
	credential := core.GetCredentialFromEnv()
	if credential != nil {
		return credential, nil
	}
	return core.ReadPasswordConfirm()
}

// OpenDB opens the database at path. The key comes from PAGECODEC_KEY, then
// the OS keyring, then a prompt. A stale keyring entry falls back to the
// prompt once.
func OpenDB(path string, opts core.Options) (*core.DB, []byte, CredentialSource) {
	opts.Logger = Logger

	if credential := core.GetCredentialFromEnv(); credential != nil {
		db, err := core.Open(path, credential, opts)
		if err != nil {
			crypto.ClearBytes(credential)
			HandleError(err)
		}
		return db, credential, SourceEnv
	}

	status, err := core.Status(path)
	if err != nil {
		HandleError(err)
	}

	if credential, err := keyring.GetCredential(status.ID); err == nil {
		db, err := core.Open(path, credential, opts)
		if err == nil {
			return db, credential, SourceKeyring
		}
		crypto.ClearBytes(credential)
		if !errors.Is(err, core.ErrWrongKey) {
			HandleError(err)
		}
		fmt.Fprintln(os.Stderr, "Stored keyring key is stale")
	}

	credential, err := core.ReadPassword("Enter key: ")
	if err != nil {
		HandleError(err)
	}
	db, err := core.Open(path, credential, opts)
	if err != nil {
		crypto.ClearBytes(credential)
		HandleError(err)
	}
	return db, credential, SourcePrompt
}

// OfferToSaveCredential asks whether a prompted key should go to the keyring
func OfferToSaveCredential(dbID string, credential []byte) {
	if keyring.HasCredential(dbID) {
		return
	}
	fmt.Fprint(os.Stderr, "Save key to keyring? [y/N]: ")
	var answer string
	fmt.Scanln(&answer)
	if answer != "y" && answer != "Y" {
		return
	}
	if err := keyring.SaveCredential(dbID, credential); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, "Key saved to keyring")
}

// HandleError handles common errors consistently
func HandleError(err error) {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: database not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'pagecodec init <db>' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: database already exists\n")
		fmt.Fprintf(os.Stderr, "Use 'pagecodec status <db>' to see current state\n")
	case errors.Is(err, core.ErrWrongKey):
		fmt.Fprintf(os.Stderr, "Error: wrong key\n")
	case errors.Is(err, codec.ErrInvalidKeyFormat):
		fmt.Fprintf(os.Stderr, "Error: invalid key (empty, or malformed x'...' hex literal)\n")
	case errors.Is(err, codec.ErrKeyExportDisabled):
		fmt.Fprintf(os.Stderr, "Error: key export is disabled\n")
		fmt.Fprintf(os.Stderr, "Pass -allow-key-export to print the raw key\n")
	case errors.Is(err, codec.ErrUnsupportedRekey):
		fmt.Fprintf(os.Stderr, "Error: this backend cannot rewrite pages atomically\n")
	case errors.Is(err, storage.ErrPageNotFound):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use 'pagecodec status <db>' to see the page count\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}

func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
