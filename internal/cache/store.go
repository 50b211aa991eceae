// Package cache persists per-symbol tables of dated price rows.
//
// Appends are append-only and assumed externally serialized per symbol;
// concurrent writers to one symbol are out of scope. Read failures are
// recoverable: callers treat them as "symbol has no cached rows" and refetch.
package cache

import (
	"context"
	"time"

	"stockhist/internal/stock"
)

// Store is a persistent per-symbol table of dated price rows.
type Store interface {
	// Exists reports whether any rows are cached for the symbol.
	Exists(ctx context.Context, symbol string) (bool, error)
	// ReadRange returns the symbol's rows with dates in [from, to),
	// chronologically ordered.
	ReadRange(ctx context.Context, symbol string, from, to time.Time) ([]stock.PriceRow, error)
	// Append adds rows for the symbol and returns how many were written.
	// Rows for already-cached dates are ignored, not overwritten.
	Append(ctx context.Context, symbol string, rows []stock.PriceRow) (int, error)
	// Close releases the store's resources.
	Close() error
}
