// Package gaps finds the month-aligned sub-ranges of a query that have no
// cached data.
//
// Coverage is month-granular: a month containing any cached row counts as
// fully covered, even if only a single day of it is present. Callers should
// not expect day-level gap detection.
package gaps

import (
	"time"

	"stockhist/internal/stock"
)

// Find returns the chronologically ordered list of missing month-aligned
// sub-ranges of q not covered by existing. Consecutive uncovered months are
// coalesced into one gap, so no two returned gaps overlap or touch. An empty
// row set yields the whole query range as a single gap.
//
// The query is expected to be standardized to month boundaries
// (stock.Query.Standardize); existing should already be restricted to
// [q.From, q.To).
func Find(existing []stock.PriceRow, q stock.Query) []stock.Query {
	if len(existing) == 0 {
		return []stock.Query{q}
	}

	var out []stock.Query
	var open *stock.Query // gap being accumulated

	for month := stock.MonthStart(q.From); month.Before(q.To); month = stock.NextMonthStart(month) {
		// clip the month to the query range; first and last months may
		// be partial
		lo, hi := month, stock.NextMonthStart(month)
		if lo.Before(q.From) {
			lo = q.From
		}
		if hi.After(q.To) {
			hi = q.To
		}

		if covered(existing, lo, hi) {
			if open != nil {
				out = append(out, *open)
				open = nil
			}
			continue
		}

		if open == nil {
			open = &stock.Query{Symbol: q.Symbol, From: lo}
		}
		open.To = hi
	}

	if open != nil {
		out = append(out, *open)
	}
	return out
}

// covered reports whether any row falls inside [lo, hi).
func covered(rows []stock.PriceRow, lo, hi time.Time) bool {
	for _, row := range rows {
		d := stock.Day(row.Date)
		if !d.Before(lo) && d.Before(hi) {
			return true
		}
	}
	return false
}
