package application

import (
	"context"
	"fmt"
)

// OptionColumns lists the columns whose distinct values populate the choice
// widgets of the presentation layer.
var OptionColumns = []string{FieldNetwork, FieldStrategy}

// DistinctOptions fetches the distinct values of one column, sorted
// ascending with no repeats. The store excludes null and empty values, so
// widgets stay populated even after a query narrows the visible rows.
func DistinctOptions(ctx context.Context, store LogStore, column string) ([]string, error) {
	values, err := store.DistinctValues(ctx, column)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	return values, nil
}
