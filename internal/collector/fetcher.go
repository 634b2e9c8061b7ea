package collector

import (
	"context"
	"time"

	"ValuationSentinel/internal/valuation"
)

// Table is a raw valuation table plus where it came from.
type Table struct {
	Raw        *valuation.RawTable
	Source     string
	ModifiedAt time.Time
}

// Fetcher defines the interface for obtaining raw valuation tables.
type Fetcher interface {
	FetchTable(ctx context.Context, prefix string) (*Table, error)
	Name() string
}
