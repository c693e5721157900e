package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/keyring"
)

// Status shows what can be known about a database without its key
func Status(path string) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No database found at %s\n", path)
			fmt.Println("Run 'pagecodec init' to create one")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		return
	}

	// Get status (no key required)
	status, err := core.Status(path)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Database:  %s\n", status.Path)
	fmt.Printf("Backend:   %s\n", status.Backend)
	fmt.Printf("ID:        %s\n", status.ID)
	fmt.Printf("Pages:     %d x %d bytes\n", status.PageCount, status.PageSize)
	fmt.Printf("Size:      %s\n", formatSize(status.Size))
	if !status.Created.IsZero() {
		fmt.Printf("Created:   %s\n", status.Created.Format(time.RFC3339))
	}
	if !status.Modified.IsZero() {
		fmt.Printf("Modified:  %s\n", status.Modified.Format(time.RFC3339))
	}
	if keyring.HasCredential(status.ID) {
		fmt.Println("Key:       stored in keyring")
	} else {
		fmt.Println("Key:       not stored")
	}
}
