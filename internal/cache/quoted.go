package cache

import (
	"context"
	"time"

	"stockhist/internal/quota"
	"stockhist/internal/stock"
)

// QuotedStore brackets every store operation with the appropriate quota
// manager: reads with the cache-read manager, appends with the cache-write
// manager. Transient store failures ride the managers' backoff; a store
// whose API meters reads and writes separately (the original backing was a
// spreadsheet service) never sees its quota exceeded.
type QuotedStore struct {
	inner Store
	read  *quota.Manager
	write *quota.Manager
}

// NewQuotedStore wraps inner with the read/write managers from quotas.
func NewQuotedStore(inner Store, quotas *quota.Set) *QuotedStore {
	return &QuotedStore{inner: inner, read: quotas.CacheRead, write: quotas.CacheWrite}
}

func (s *QuotedStore) Exists(ctx context.Context, symbol string) (bool, error) {
	result, err := s.read.Perform(ctx, func() (any, error) {
		return s.inner.Exists(ctx, symbol)
	}, nil)
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (s *QuotedStore) ReadRange(ctx context.Context, symbol string, from, to time.Time) ([]stock.PriceRow, error) {
	result, err := s.read.Perform(ctx, func() (any, error) {
		return s.inner.ReadRange(ctx, symbol, from, to)
	}, nil)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.([]stock.PriceRow), nil
}

func (s *QuotedStore) Append(ctx context.Context, symbol string, rows []stock.PriceRow) (int, error) {
	result, err := s.write.Perform(ctx, func() (any, error) {
		return s.inner.Append(ctx, symbol, rows)
	}, nil)
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (s *QuotedStore) Close() error {
	return s.inner.Close()
}
