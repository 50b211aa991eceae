package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockhist/internal/cache"
	"stockhist/internal/fetch"
	"stockhist/internal/quota"
	"stockhist/internal/stock"
)

var testNow = time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func row(y int, m time.Month, d int) stock.PriceRow {
	return stock.PriceRow{
		Date: date(y, m, d), Open: 100, High: 110, Low: 95, Close: 105, AdjClose: 104, Volume: 1000,
	}
}

// rowsFor returns one synthetic row on the 3rd of each month in [From, To).
func rowsFor(q stock.Query) []stock.PriceRow {
	var rows []stock.PriceRow
	for m := stock.MonthStart(q.From); m.Before(q.To); m = stock.NextMonthStart(m) {
		rows = append(rows, row(m.Year(), m.Month(), 3))
	}
	return rows
}

func newReconciler(t *testing.T, src fetch.Source) (*Reconciler, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	r := New(store, src, quota.NewTestManager("remote-read", 4))
	r.now = func() time.Time { return testNow }
	return r, store
}

func query(t *testing.T, from, to time.Time) stock.Query {
	t.Helper()
	q, err := stock.NewQuery("IBM", from, to)
	if err != nil {
		t.Fatalf("NewQuery() error = %v", err)
	}
	return q
}

func TestRunEmptyCacheFetchesWholeRange(t *testing.T) {
	src := &fetch.MockSource{Respond: func(q stock.Query) *fetch.Result {
		return &fetch.Result{Query: q, Rows: rowsFor(q)}
	}}
	r, store := newReconciler(t, src)

	res, err := r.Run(context.Background(), query(t, date(2022, 1, 1), date(2022, 4, 1)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(src.Queries) != 1 {
		t.Fatalf("source called %d times, want 1", len(src.Queries))
	}
	if len(res.Rows) != 3 {
		t.Errorf("Run() returned %d rows, want 3", len(res.Rows))
	}
	if len(res.Missing) != 0 {
		t.Errorf("Missing = %v, want none", res.Missing)
	}

	// fetched rows are durable
	cached, err := store.ReadRange(context.Background(), "IBM", date(2022, 1, 1), date(2022, 4, 1))
	if err != nil {
		t.Fatalf("ReadRange() error = %v", err)
	}
	if len(cached) != 3 {
		t.Errorf("cache holds %d rows after run, want 3", len(cached))
	}
}

func TestRunFetchesOnlyGaps(t *testing.T) {
	src := &fetch.MockSource{Respond: func(q stock.Query) *fetch.Result {
		return &fetch.Result{Query: q, Rows: rowsFor(q)}
	}}
	r, store := newReconciler(t, src)

	// January and March cached; February and April..May missing
	seed := []stock.PriceRow{row(2022, 1, 10), row(2022, 3, 10)}
	if _, err := store.Append(context.Background(), "IBM", seed); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	res, err := r.Run(context.Background(), query(t, date(2022, 1, 1), date(2022, 6, 1)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(src.Queries) != 2 {
		t.Fatalf("source called %d times, want 2 (one per gap)", len(src.Queries))
	}
	if !src.Queries[0].From.Equal(date(2022, 2, 1)) || !src.Queries[0].To.Equal(date(2022, 3, 1)) {
		t.Errorf("first gap = %v..%v, want Feb..Mar", src.Queries[0].From, src.Queries[0].To)
	}
	if !src.Queries[1].From.Equal(date(2022, 4, 1)) || !src.Queries[1].To.Equal(date(2022, 6, 1)) {
		t.Errorf("second gap = %v..%v, want Apr..Jun", src.Queries[1].From, src.Queries[1].To)
	}

	// cached rows win their dates; merged set covers all five months
	if len(res.Rows) != 5 {
		t.Fatalf("Run() returned %d rows, want 5", len(res.Rows))
	}
	for i := 1; i < len(res.Rows); i++ {
		if !res.Rows[i-1].Date.Before(res.Rows[i].Date) {
			t.Errorf("rows out of order at %d: %v >= %v", i, res.Rows[i-1].Date, res.Rows[i].Date)
		}
	}
	if !res.Rows[0].Date.Equal(date(2022, 1, 10)) {
		t.Errorf("first row = %v, want cached Jan 10", res.Rows[0].Date)
	}
}

func TestRunSecondPassIsIdempotent(t *testing.T) {
	src := &fetch.MockSource{Respond: func(q stock.Query) *fetch.Result {
		return &fetch.Result{Query: q, Rows: rowsFor(q)}
	}}
	r, _ := newReconciler(t, src)
	q := query(t, date(2022, 1, 1), date(2022, 4, 1))

	if _, err := r.Run(context.Background(), q); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	calls := len(src.Queries)

	res, err := r.Run(context.Background(), q)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(src.Queries) != calls {
		t.Errorf("second run hit the source %d more times, want 0", len(src.Queries)-calls)
	}
	if len(res.Rows) != 3 {
		t.Errorf("second Run() returned %d rows, want 3", len(res.Rows))
	}
}

func TestRunSymbolNotFoundAborts(t *testing.T) {
	src := &fetch.MockSource{Respond: func(q stock.Query) *fetch.Result {
		return &fetch.Result{Query: q, Err: fetch.ErrSymbolNotFound}
	}}
	r, _ := newReconciler(t, src)

	_, err := r.Run(context.Background(), query(t, date(2022, 1, 1), date(2022, 4, 1)))
	var notFound *SymbolNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Run() error = %v, want SymbolNotFoundError", err)
	}
	if notFound.Symbol != "IBM" {
		t.Errorf("Symbol = %q, want IBM", notFound.Symbol)
	}
}

func TestRunNoDataBecomesMissingSpan(t *testing.T) {
	src := &fetch.MockSource{Respond: func(q stock.Query) *fetch.Result {
		if q.From.Equal(date(2022, 2, 1)) {
			return &fetch.Result{Query: q, Err: fetch.ErrNoDataForRange}
		}
		return &fetch.Result{Query: q, Rows: rowsFor(q)}
	}}
	r, store := newReconciler(t, src)

	seed := []stock.PriceRow{row(2022, 1, 10), row(2022, 3, 10)}
	if _, err := store.Append(context.Background(), "IBM", seed); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	res, err := r.Run(context.Background(), query(t, date(2022, 1, 1), date(2022, 6, 1)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Missing) != 1 {
		t.Fatalf("Missing = %v, want one span", res.Missing)
	}
	if !res.Missing[0].From.Equal(date(2022, 2, 1)) || !res.Missing[0].To.Equal(date(2022, 3, 1)) {
		t.Errorf("Missing[0] = %v..%v, want Feb..Mar", res.Missing[0].From, res.Missing[0].To)
	}
	// the other gap still got filled
	if len(res.Rows) != 4 {
		t.Errorf("Run() returned %d rows, want 4", len(res.Rows))
	}
}

// A gap that keeps failing with a retryable error exhausts backoff and is
// reported as missing instead of failing the run.
func TestRunRetryExhaustionBecomesMissingSpan(t *testing.T) {
	src := &fetch.MockSource{Respond: func(q stock.Query) *fetch.Result {
		return &fetch.Result{Query: q, Err: fetch.ErrCommunication}
	}}
	r, _ := newReconciler(t, src)

	res, err := r.Run(context.Background(), query(t, date(2022, 1, 1), date(2022, 2, 1)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Missing) != 1 {
		t.Fatalf("Missing = %v, want one span", res.Missing)
	}
	if len(src.Queries) != 4 {
		t.Errorf("source called %d times, want 4 (initial + 3 retries)", len(src.Queries))
	}
	if len(res.Rows) != 0 {
		t.Errorf("Run() returned %d rows, want 0", len(res.Rows))
	}
}

func TestRunCacheReadFailureDegradesToRefetch(t *testing.T) {
	src := &fetch.MockSource{Respond: func(q stock.Query) *fetch.Result {
		return &fetch.Result{Query: q, Rows: rowsFor(q)}
	}}
	store := cache.NewMemoryStore()
	if _, err := store.Append(context.Background(), "IBM", []stock.PriceRow{row(2022, 1, 10)}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	store.ReadErr = errors.New("backend unavailable")

	r := New(store, src, quota.NewTestManager("remote-read", 4))
	r.now = func() time.Time { return testNow }

	res, err := r.Run(context.Background(), query(t, date(2022, 1, 1), date(2022, 2, 1)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// the cached January row was invisible, so the month was refetched
	if len(src.Queries) != 1 {
		t.Errorf("source called %d times, want 1", len(src.Queries))
	}
	if len(res.Rows) != 1 {
		t.Errorf("Run() returned %d rows, want 1", len(res.Rows))
	}
}

func TestRunCanceledContext(t *testing.T) {
	src := &fetch.MockSource{Respond: func(q stock.Query) *fetch.Result {
		return &fetch.Result{Query: q, Err: fetch.ErrCommunication}
	}}
	r, _ := newReconciler(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, query(t, date(2022, 1, 1), date(2022, 2, 1)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
