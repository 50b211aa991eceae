// Package reconcile drives a cache-backed range download: it reads what is
// already cached for a symbol, finds the missing month-aligned sub-ranges,
// fetches each one under quota, writes fetched rows back to the cache, and
// returns one merged result annotated with any spans it could not fill.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"stockhist/internal/cache"
	"stockhist/internal/fetch"
	"stockhist/internal/gaps"
	"stockhist/internal/observ"
	"stockhist/internal/quota"
	"stockhist/internal/stock"
)

// Span is a date range [From, To) that could not be filled.
type Span struct {
	From time.Time
	To   time.Time
}

// Result is a completed reconciliation: the merged, chronologically ordered,
// duplicate-free row set plus the spans still missing. Partial results are
// valid; Missing tells the caller exactly which ranges to distrust.
type Result struct {
	Query   stock.Query
	Rows    []stock.PriceRow
	Missing []Span
}

// SymbolNotFoundError aborts a reconciliation: no partial result is
// meaningful without a valid symbol.
type SymbolNotFoundError struct {
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %s not found, may be delisted or invalid", e.Symbol)
}

// Reconciler owns the collaborators for one reconciliation flow. Construct
// it explicitly at bootstrap and share it for the session; it holds no
// per-run state.
type Reconciler struct {
	store  cache.Store
	source fetch.Source
	remote *quota.Manager

	now func() time.Time
}

// New builds a reconciler. The remote quota manager gates every source
// fetch; cache pacing, if any, is the store's own concern (see
// cache.QuotedStore).
func New(store cache.Store, source fetch.Source, remote *quota.Manager) *Reconciler {
	return &Reconciler{store: store, source: source, remote: remote, now: time.Now}
}

// Run reconciles the query's range: Idle -> FetchingGaps -> Merging -> Done.
// The query is standardized to month boundaries first. A cache read failure
// is treated as "no cached rows", never as a hard error. Only an invalid
// symbol fails the run; unfilled gaps are reported in Result.Missing.
func (r *Reconciler) Run(ctx context.Context, q stock.Query) (*Result, error) {
	q = q.Standardize(r.now())

	cached, err := r.store.ReadRange(ctx, q.Symbol, q.From, q.To)
	if err != nil {
		// redundant refetching is the safe failure mode here
		observ.Log("cache_read_failed", map[string]any{
			"symbol": q.Symbol,
			"error":  err.Error(),
		})
		cached = nil
	}

	missing := gaps.Find(cached, q)
	observ.Log("gaps_found", map[string]any{
		"symbol": q.Symbol,
		"cached": len(cached),
		"gaps":   len(missing),
	})
	observ.IncCounterBy("gaps_found", map[string]string{"symbol": q.Symbol}, float64(len(missing)))

	result := &Result{Query: q}
	fetched := make([][]stock.PriceRow, 0, len(missing))

	for _, gap := range missing {
		rows, err := r.fillGap(ctx, gap)
		if err != nil {
			if _, fatal := err.(*SymbolNotFoundError); fatal {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Missing = append(result.Missing, Span{From: gap.From, To: gap.To})
			continue
		}
		if len(rows) == 0 {
			result.Missing = append(result.Missing, Span{From: gap.From, To: gap.To})
			continue
		}
		fetched = append(fetched, rows)
	}

	result.Rows = stock.MergeByDate(append([][]stock.PriceRow{cached}, fetched...)...)
	observ.SetGauge("missing_spans", float64(len(result.Missing)),
		map[string]string{"symbol": q.Symbol})
	return result, nil
}

// fillGap fetches one gap under quota and appends the rows to the cache
// before returning them, so fetched data is durable even if a later gap
// fails.
func (r *Reconciler) fillGap(ctx context.Context, gap stock.Query) ([]stock.PriceRow, error) {
	raw, err := r.remote.Perform(ctx, func() (any, error) {
		return r.source.Fetch(ctx, gap), nil
	}, fetch.RetryCheck)
	if err != nil {
		// backoff ceiling or cancellation; degrades to a missing span
		return nil, err
	}

	res := raw.(*fetch.Result)
	switch res.Err {
	case fetch.ErrNone:
	case fetch.ErrSymbolNotFound:
		return nil, &SymbolNotFoundError{Symbol: gap.Symbol}
	default:
		return nil, fmt.Errorf("gap %s unfilled: %s", gap, res.Err)
	}

	if len(res.Rows) > 0 {
		written, err := r.store.Append(ctx, gap.Symbol, res.Rows)
		if err != nil {
			// rows are still usable for this run's merge
			observ.Log("cache_append_failed", map[string]any{
				"symbol": gap.Symbol,
				"error":  err.Error(),
			})
		} else {
			observ.Log("gap_filled", map[string]any{
				"symbol":  gap.Symbol,
				"from":    gap.From.Format("2006-01-02"),
				"to":      gap.To.Format("2006-01-02"),
				"rows":    len(res.Rows),
				"written": written,
			})
		}
	}
	return res.Rows, nil
}
