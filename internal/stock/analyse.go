package stock

import "time"

// ColumnStats holds the summary statistics for one price column.
type ColumnStats struct {
	Min           float64
	Max           float64
	Avg           float64
	Change        float64 // last minus first, chronological
	PercentChange float64
}

// Analysis is the result of analysing a row set for a query.
type Analysis struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Count     int
	FirstDate time.Time
	LastDate  time.Time

	Open     ColumnStats
	High     ColumnStats
	Low      ColumnStats
	Close    ColumnStats
	AdjClose ColumnStats

	VolumeMin int64
	VolumeMax int64
	VolumeAvg float64
}

// MissingLeading reports whether data starts after the requested range.
func (a Analysis) MissingLeading() bool {
	return a.Count > 0 && a.FirstDate.After(a.From)
}

// MissingTrailing reports whether data ends before the requested range.
// To is exclusive, so the last expected row is the day before To.
func (a Analysis) MissingTrailing() bool {
	return a.Count > 0 && a.LastDate.Before(a.To.AddDate(0, 0, -1))
}

func columnStats(rows []PriceRow, value func(PriceRow) float64) ColumnStats {
	s := ColumnStats{Min: value(rows[0]), Max: value(rows[0])}
	var sum float64
	for _, row := range rows {
		v := value(row)
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += v
	}
	s.Avg = sum / float64(len(rows))
	first, last := value(rows[0]), value(rows[len(rows)-1])
	s.Change = last - first
	if first != 0 {
		s.PercentChange = s.Change / first * 100
	}
	return s
}

// Analyse computes per-column min/max/average/change statistics over rows
// for the given query. Rows need not be pre-sorted. Returns nil when there
// are no rows to analyse.
func Analyse(rows []PriceRow, q Query) *Analysis {
	if len(rows) == 0 {
		return nil
	}
	sorted := make([]PriceRow, len(rows))
	copy(sorted, rows)
	SortByDate(sorted)

	a := &Analysis{
		Symbol:    q.Symbol,
		From:      q.From,
		To:        q.To,
		Count:     len(sorted),
		FirstDate: Day(sorted[0].Date),
		LastDate:  Day(sorted[len(sorted)-1].Date),

		Open:     columnStats(sorted, func(r PriceRow) float64 { return r.Open }),
		High:     columnStats(sorted, func(r PriceRow) float64 { return r.High }),
		Low:      columnStats(sorted, func(r PriceRow) float64 { return r.Low }),
		Close:    columnStats(sorted, func(r PriceRow) float64 { return r.Close }),
		AdjClose: columnStats(sorted, func(r PriceRow) float64 { return r.AdjClose }),
	}

	a.VolumeMin, a.VolumeMax = sorted[0].Volume, sorted[0].Volume
	var volSum int64
	for _, row := range sorted {
		if row.Volume < a.VolumeMin {
			a.VolumeMin = row.Volume
		}
		if row.Volume > a.VolumeMax {
			a.VolumeMax = row.Volume
		}
		volSum += row.Volume
	}
	a.VolumeAvg = float64(volSum) / float64(len(sorted))

	return a
}
