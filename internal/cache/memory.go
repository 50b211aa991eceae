package cache

import (
	"context"
	"sync"
	"time"

	"stockhist/internal/stock"
)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]stock.PriceRow

	// Optional fault injection.
	ReadErr   error
	AppendErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]stock.PriceRow)}
}

func (m *MemoryStore) Exists(_ context.Context, symbol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return false, m.ReadErr
	}
	return len(m.data[symbol]) > 0, nil
}

func (m *MemoryStore) ReadRange(_ context.Context, symbol string, from, to time.Time) ([]stock.PriceRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	var out []stock.PriceRow
	for _, row := range m.data[symbol] {
		d := stock.Day(row.Date)
		if !d.Before(from) && d.Before(to) {
			out = append(out, row)
		}
	}
	stock.SortByDate(out)
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, symbol string, rows []stock.PriceRow) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return 0, m.AppendErr
	}
	have := make(map[time.Time]bool, len(m.data[symbol]))
	for _, row := range m.data[symbol] {
		have[stock.Day(row.Date)] = true
	}
	written := 0
	for _, row := range rows {
		d := stock.Day(row.Date)
		if have[d] {
			continue
		}
		have[d] = true
		m.data[symbol] = append(m.data[symbol], row)
		written++
	}
	return written, nil
}

func (m *MemoryStore) Close() error { return nil }
