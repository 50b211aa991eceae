package stock

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewQuery(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		from    time.Time
		to      time.Time
		wantErr bool
		want    string
	}{
		{
			name:   "normalizes symbol",
			symbol: " ibm ",
			from:   date(2022, 1, 1),
			to:     date(2022, 2, 1),
			want:   "IBM",
		},
		{
			name:    "empty symbol",
			symbol:  "  ",
			from:    date(2022, 1, 1),
			to:      date(2022, 2, 1),
			wantErr: true,
		},
		{
			name:    "from equals to",
			symbol:  "IBM",
			from:    date(2022, 1, 1),
			to:      date(2022, 1, 1),
			wantErr: true,
		},
		{
			name:    "from after to",
			symbol:  "IBM",
			from:    date(2022, 3, 1),
			to:      date(2022, 1, 1),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQuery(tt.symbol, tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewQuery() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && q.Symbol != tt.want {
				t.Errorf("symbol = %q, want %q", q.Symbol, tt.want)
			}
		})
	}
}

func TestStandardize(t *testing.T) {
	now := date(2023, 6, 15)

	tests := []struct {
		name     string
		from     time.Time
		to       time.Time
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "already aligned",
			from:     date(2022, 1, 1),
			to:       date(2022, 7, 1),
			wantFrom: date(2022, 1, 1),
			wantTo:   date(2022, 7, 1),
		},
		{
			name:     "mid month snaps out",
			from:     date(2022, 1, 15),
			to:       date(2022, 3, 20),
			wantFrom: date(2022, 1, 1),
			wantTo:   date(2022, 4, 1),
		},
		{
			name:     "december rollover",
			from:     date(2021, 12, 5),
			to:       date(2021, 12, 20),
			wantFrom: date(2021, 12, 1),
			wantTo:   date(2022, 1, 1),
		},
		{
			name:     "to capped at now",
			from:     date(2023, 6, 1),
			to:       date(2023, 6, 10),
			wantFrom: date(2023, 6, 1),
			wantTo:   now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Query{Symbol: "IBM", From: tt.from, To: tt.to}
			std := q.Standardize(now)
			if !std.From.Equal(tt.wantFrom) {
				t.Errorf("From = %v, want %v", std.From, tt.wantFrom)
			}
			if !std.To.Equal(tt.wantTo) {
				t.Errorf("To = %v, want %v", std.To, tt.wantTo)
			}
			// day-one round trip unless capped at now
			if std.From.Day() != 1 {
				t.Errorf("standardized From.Day() = %d, want 1", std.From.Day())
			}
			if std.To.After(now) {
				t.Errorf("standardized To %v is after now %v", std.To, now)
			}
		})
	}
}

func TestMergeByDate(t *testing.T) {
	cached := []PriceRow{
		{Date: date(2022, 1, 4), Close: 10},
		{Date: date(2022, 1, 3), Close: 9},
	}
	fetched := []PriceRow{
		{Date: date(2022, 1, 4), Close: 99}, // duplicate date, cached wins
		{Date: date(2022, 1, 5), Close: 11},
	}

	merged := MergeByDate(cached, fetched)
	if len(merged) != 3 {
		t.Fatalf("merged %d rows, want 3", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if !merged[i-1].Date.Before(merged[i].Date) {
			t.Errorf("rows out of order at %d: %v >= %v", i, merged[i-1].Date, merged[i].Date)
		}
	}
	if merged[1].Close != 10 {
		t.Errorf("duplicate date resolved to %v, want cached row (10)", merged[1].Close)
	}
}

func TestAnalyse(t *testing.T) {
	q := Query{Symbol: "IBM", From: date(2022, 1, 1), To: date(2022, 2, 1)}
	rows := []PriceRow{
		{Date: date(2022, 1, 5), Open: 12, High: 15, Low: 11, Close: 14, AdjClose: 13.5, Volume: 200},
		{Date: date(2022, 1, 3), Open: 10, High: 12, Low: 9, Close: 11, AdjClose: 10.5, Volume: 100},
		{Date: date(2022, 1, 4), Open: 11, High: 13, Low: 10, Close: 12, AdjClose: 11.5, Volume: 300},
	}

	a := Analyse(rows, q)
	if a == nil {
		t.Fatal("Analyse returned nil")
	}
	if a.Count != 3 {
		t.Errorf("Count = %d, want 3", a.Count)
	}
	if a.Close.Min != 11 || a.Close.Max != 14 {
		t.Errorf("Close min/max = %v/%v, want 11/14", a.Close.Min, a.Close.Max)
	}
	// chronological change: 14 (Jan 5) - 11 (Jan 3)
	if a.Close.Change != 3 {
		t.Errorf("Close.Change = %v, want 3", a.Close.Change)
	}
	if want := 3.0 / 11.0 * 100; a.Close.PercentChange < want-0.001 || a.Close.PercentChange > want+0.001 {
		t.Errorf("Close.PercentChange = %v, want %v", a.Close.PercentChange, want)
	}
	if a.VolumeMin != 100 || a.VolumeMax != 300 || a.VolumeAvg != 200 {
		t.Errorf("volume stats = %d/%d/%v, want 100/300/200", a.VolumeMin, a.VolumeMax, a.VolumeAvg)
	}
	if !a.MissingLeading() {
		t.Error("expected MissingLeading: first row is Jan 3, range starts Jan 1")
	}
	if !a.MissingTrailing() {
		t.Error("expected MissingTrailing: last row is Jan 5, range ends Feb 1")
	}

	if got := Analyse(nil, q); got != nil {
		t.Errorf("Analyse(nil) = %v, want nil", got)
	}
}
