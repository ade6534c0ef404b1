package strata

import (
	"context"
)

// Engine executes queries against one sealed columnar store.
type Engine interface {
	// Execute runs a query with the given per-query options.
	Execute(ctx context.Context, query *Query, opts QueryOptions) (*QueryResult, error)

	// Store access
	NumRows() int
	Schema() *Schema
	ToRecords() []Record
	Statistics() *BuildStatistics

	// Unsupported relational operators. Both always fail with an
	// UnsupportedOperation error naming the operator.
	Join(ctx context.Context) error
	GroupJoin(ctx context.Context) error

	// Adaptive advisor output for all tracked query shapes.
	Recommendations() []Recommendation

	// ExportColumn hands a column's buffers to the IPC collaborator,
	// optionally compressed through the process-wide codec.
	ExportColumn(field string, compress bool) (*ColumnBuffers, error)
}
