// Package fetch downloads bounded date ranges of historical price rows from
// a remote source and classifies failures into domain error kinds.
package fetch

import (
	"context"
	"fmt"

	"stockhist/internal/quota"
	"stockhist/internal/stock"
)

// ErrorKind classifies a failed fetch. Expected HTTP failures are returned
// as kinds, never as raw errors.
type ErrorKind int

const (
	// ErrNone marks a successful fetch.
	ErrNone ErrorKind = iota
	// ErrNoDataForRange means the symbol exists but has no rows in the
	// requested window. Recoverable: the range is reported missing.
	ErrNoDataForRange
	// ErrSymbolNotFound means the symbol is invalid or delisted. Fatal for
	// the whole reconciliation.
	ErrSymbolNotFound
	// ErrQuotaExceeded is the source's rate-limit signal (HTTP 429).
	// Always retryable.
	ErrQuotaExceeded
	// ErrCommunication covers network failures, malformed payloads and
	// unexpected statuses. Retryable until backoff exhausts.
	ErrCommunication
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNone:
		return "none"
	case ErrNoDataForRange:
		return "no_data_for_range"
	case ErrSymbolNotFound:
		return "symbol_not_found"
	case ErrQuotaExceeded:
		return "quota_exceeded"
	case ErrCommunication:
		return "communication_error"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// Result is the outcome of one bounded-range download. Either Rows is
// populated and Err is ErrNone, or Rows is nil and Err names the failure.
type Result struct {
	Query stock.Query
	Rows  []stock.PriceRow
	Err   ErrorKind
}

// OK reports whether the fetch succeeded.
func (r *Result) OK() bool { return r.Err == ErrNone }

// Source downloads price rows for a query's date range. Implementations
// must absorb transport failures into the result's ErrorKind; Fetch never
// panics or surfaces raw HTTP errors.
type Source interface {
	Fetch(ctx context.Context, q stock.Query) *Result
}

// RetryCheck adapts fetch results to quota outcomes. Rate-limit and
// communication failures back off and retry; definitive answers, including
// no-data and bad-symbol, complete the operation.
func RetryCheck(result any, err error) (quota.Outcome, string) {
	if err != nil {
		return quota.Retry, err.Error()
	}
	res, ok := result.(*Result)
	if !ok || res == nil {
		return quota.Retry, "no response"
	}
	switch res.Err {
	case ErrQuotaExceeded, ErrCommunication:
		return quota.Retry, res.Err.String()
	default:
		return quota.Success, ""
	}
}
