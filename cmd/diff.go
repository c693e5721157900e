package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/pagecodec/internal/core"
	"github.com/illarion/pagecodec/internal/crypto"
)

// Diff compares the decrypted pages of two databases
func Diff(ctx context.Context, pathA, pathB string) {
	a, keyA, _ := OpenDB(pathA, core.Options{})
	defer a.Close()
	defer crypto.ClearBytes(keyA)

	b, keyB, _ := OpenDB(pathB, core.Options{})
	defer b.Close()
	defer crypto.ClearBytes(keyB)

	diffs, err := a.Diff(ctx, b)
	if err != nil {
		HandleError(err)
	}
	if len(diffs) == 0 {
		fmt.Println("no differences")
		return
	}
	for _, d := range diffs {
		fmt.Print(d.Unified)
	}
	fmt.Printf("%d pages differ\n", len(diffs))
}
