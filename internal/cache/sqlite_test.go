package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stockhist/internal/stock"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleRows() []stock.PriceRow {
	return []stock.PriceRow{
		{Date: date(2022, 1, 3), Open: 134.07, High: 136.29, Low: 133.63, Close: 136.04, AdjClose: 132.81, Volume: 4605900},
		{Date: date(2022, 1, 4), Open: 136.10, High: 139.95, Low: 135.90, Close: 138.02, AdjClose: 134.74, Volume: 7300000},
		{Date: date(2022, 2, 1), Open: 133.76, High: 135.96, Low: 132.50, Close: 135.53, AdjClose: 132.31, Volume: 6206400},
	}
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "IBM")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true on empty store")
	}

	n, err := s.Append(ctx, "IBM", sampleRows())
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Append() wrote %d, want 3", n)
	}

	exists, err = s.Exists(ctx, "IBM")
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v after append", exists, err)
	}

	// [Jan 1, Feb 1) excludes the Feb 1 row
	rows, err := s.ReadRange(ctx, "IBM", date(2022, 1, 1), date(2022, 2, 1))
	if err != nil {
		t.Fatalf("ReadRange() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ReadRange() returned %d rows, want 2", len(rows))
	}
	if !rows[0].Date.Equal(date(2022, 1, 3)) || rows[0].Volume != 4605900 {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[0].AdjClose != 132.81 {
		t.Errorf("AdjClose = %v, want 132.81", rows[0].AdjClose)
	}

	// other symbols stay isolated
	rows, err = s.ReadRange(ctx, "AAPL", date(2022, 1, 1), date(2023, 1, 1))
	if err != nil {
		t.Fatalf("ReadRange() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("ReadRange(AAPL) returned %d rows, want 0", len(rows))
	}
}

func TestSQLiteAppendIgnoresDuplicates(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "IBM", sampleRows()); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	again := append(sampleRows(), stock.PriceRow{
		Date: date(2022, 2, 2), Open: 1, High: 1, Low: 1, Close: 1, AdjClose: 1, Volume: 1,
	})
	n, err := s.Append(ctx, "IBM", again)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Append() wrote %d, want 1 (duplicates ignored)", n)
	}
}
