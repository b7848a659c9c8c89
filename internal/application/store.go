package application

import (
	"context"

	"poolscope/internal/domain"
)

// LogStore is the query capability the browsing core consumes. Results of
// QueryLogs are always ordered created_at descending. TransactionHashes
// returns every non-null hash in the table, unfiltered, one entry per row.
type LogStore interface {
	QueryLogs(ctx context.Context, constraints []Constraint) ([]domain.Log, error)
	DistinctValues(ctx context.Context, column string) ([]string, error)
	TransactionHashes(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}
