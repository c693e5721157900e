package core

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/illarion/pagecodec/internal/crypto"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// PageDiff describes one page that differs between two databases.
type PageDiff struct {
	Pgno uint32
	// Unified is a line diff of the two pages' hex dumps. A page missing on
	// one side is diffed against nothing.
	Unified string
}

// Diff decrypts both databases and compares them page by page. Both must use
// the same page size.
func (db *DB) Diff(ctx context.Context, other *DB) ([]PageDiff, error) {
	if db.PageSize() != other.PageSize() {
		return nil, fmt.Errorf("%w: %d and %d", ErrDifferentLayout, db.PageSize(), other.PageSize())
	}
	countA, err := db.PageCount()
	if err != nil {
		return nil, err
	}
	countB, err := other.PageCount()
	if err != nil {
		return nil, err
	}
	last := max(countA, countB)

	a := make([]byte, db.PageSize())
	b := make([]byte, other.PageSize())
	defer crypto.ClearBytes(a)
	defer crypto.ClearBytes(b)

	var diffs []PageDiff
	for pgno := uint32(1); pgno <= last; pgno++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		left, right := a[:0], b[:0]
		if pgno <= countA {
			if err := db.ReadPage(pgno, a); err != nil {
				return nil, err
			}
			left = a
		}
		if pgno <= countB {
			if err := other.ReadPage(pgno, b); err != nil {
				return nil, err
			}
			right = b
		}
		if bytes.Equal(left, right) {
			continue
		}
		diffs = append(diffs, PageDiff{Pgno: pgno, Unified: UnifiedPageDiff(pgno, left, right)})
	}
	return diffs, nil
}

// UnifiedPageDiff renders a line diff of the hex dumps of two page images.
func UnifiedPageDiff(pgno uint32, a, b []byte) string {
	dmp := diffmatchpatch.New()

	// Line-mode diff so each hex dump row is a unit
	dumpA, dumpB := hex.Dump(a), hex.Dump(b)
	ca, cb, lineArray := dmp.DiffLinesToChars(dumpA, dumpB)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- a/page/%d\n", pgno))
	result.WriteString(fmt.Sprintf("+++ b/page/%d\n", pgno))
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffEqual:
			// Unchanged rows are only noise in a 4 KiB dump
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			result.WriteString(prefix)
			result.WriteString(line)
		}
	}
	return result.String()
}
