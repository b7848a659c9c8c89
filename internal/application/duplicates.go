package application

import (
	"context"
	"fmt"
	"sort"
)

// DuplicateHashes scans the whole table for transaction hashes occurring on
// more than one row and returns them sorted, each hash once.
//
// The scan is deliberately global: duplicates are computed over the entire
// dataset, not the currently filtered view, matching the behavior of the
// original operator tooling. Rows sharing a hash but differing in log_index
// still count toward the frequency.
func DuplicateHashes(ctx context.Context, store LogStore) ([]string, error) {
	hashes, err := store.TransactionHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("duplicate scan: %w", err)
	}

	counts := make(map[string]int, len(hashes))
	for _, hash := range hashes {
		counts[hash]++
	}

	duplicates := make([]string, 0)
	for hash, count := range counts {
		if count > 1 {
			duplicates = append(duplicates, hash)
		}
	}
	sort.Strings(duplicates)
	return duplicates, nil
}

// DuplicateConstraint narrows a query to the given duplicate set. An empty
// set still produces a membership constraint selecting nothing; callers must
// never drop it, or the filter would silently show all rows.
func DuplicateConstraint(duplicates []string) Constraint {
	return Constraint{Op: OpInSet, Field: FieldTxHash, Values: duplicates}
}
