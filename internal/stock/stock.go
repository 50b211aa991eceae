package stock

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Query identifies a symbol and a half-open date range [From, To).
// To is exclusive everywhere in this codebase.
type Query struct {
	Symbol string
	From   time.Time
	To     time.Time
}

// NewQuery builds a validated query. The symbol is normalized to uppercase.
func NewQuery(symbol string, from, to time.Time) (Query, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Query{}, fmt.Errorf("empty symbol")
	}
	from, to = Day(from), Day(to)
	if !from.Before(to) {
		return Query{}, fmt.Errorf("invalid range for %s: from %s not before to %s",
			symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return Query{Symbol: symbol, From: from, To: to}, nil
}

// Day truncates t to a calendar day in UTC. Dates crossing component
// boundaries carry no time-of-day or zone.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the 1st of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns the 1st of the month after t, incrementing the
// year explicitly when t is in December.
func NextMonthStart(t time.Time) time.Time {
	year, month := t.Year(), int(t.Month())
	month++
	if month > 12 {
		year++
		month = 1
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// Standardize snaps the query to whole-month boundaries for gap analysis:
// From moves back to the 1st of its month, To moves forward to the 1st of
// the next month, capped at now so the range never extends into the future.
func (q Query) Standardize(now time.Time) Query {
	std := q
	if std.From.Day() > 1 {
		std.From = MonthStart(std.From)
	}
	if std.To.Day() > 1 {
		std.To = NextMonthStart(std.To)
	}
	if std.To.After(Day(now)) {
		std.To = Day(now)
	}
	return std
}

func (q Query) String() string {
	return fmt.Sprintf("%s [%s, %s)", q.Symbol,
		q.From.Format("2006-01-02"), q.To.Format("2006-01-02"))
}

// PriceRow is one day of price data for a symbol. Rows are never mutated
// after parsing; collections own their rows exclusively.
type PriceRow struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// SortByDate orders rows chronologically in place.
func SortByDate(rows []PriceRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
}

// MergeByDate combines row sets into one chronologically ordered set with
// one row per date. Earlier arguments win on duplicate dates, so cached
// rows should be passed before freshly fetched ones.
func MergeByDate(sets ...[]PriceRow) []PriceRow {
	seen := make(map[time.Time]bool)
	var merged []PriceRow
	for _, rows := range sets {
		for _, row := range rows {
			d := Day(row.Date)
			if seen[d] {
				continue
			}
			seen[d] = true
			merged = append(merged, row)
		}
	}
	SortByDate(merged)
	return merged
}
