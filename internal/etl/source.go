package etl

import (
	"context"
	"time"
)

// ── Source ──────────────────────────────────────────────────
// A QueryExecutor extracts changed rows from the operational database.
// Implementations live in etl/sources/.

// QueryExecutor returns the rows changed strictly after cutoff. Date/time
// fields are rendered with SQLDateTimeLayout and the returned recordset has
// LastModified set to cutoff and its attribute index populated.
type QueryExecutor interface {
	Fetch(ctx context.Context, cutoff time.Time) (*Recordset, error)
}

// QueryExecutorFunc adapts a function to QueryExecutor.
type QueryExecutorFunc func(ctx context.Context, cutoff time.Time) (*Recordset, error)

func (f QueryExecutorFunc) Fetch(ctx context.Context, cutoff time.Time) (*Recordset, error) {
	return f(ctx, cutoff)
}
