package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockhist/internal/observ"
	"stockhist/internal/stock"
)

// YahooConfig holds configuration for the Yahoo Finance source.
type YahooConfig struct {
	HistoryBaseURL  string // session handshake host
	DownloadBaseURL string // CSV download host
	TimeoutSeconds  int
	UserAgent       string
}

// YahooSource downloads daily historical rows from the Yahoo Finance v7 CSV
// endpoint. A handshake against the symbol's history page primes session
// cookies before the download request.
type YahooSource struct {
	config YahooConfig
	client *http.Client
}

// NewYahooSource creates a Yahoo source, applying defaults for unset config.
func NewYahooSource(config YahooConfig) *YahooSource {
	if config.HistoryBaseURL == "" {
		config.HistoryBaseURL = "https://finance.yahoo.com"
	}
	if config.DownloadBaseURL == "" {
		config.DownloadBaseURL = "https://query1.finance.yahoo.com"
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 30
	}
	if config.UserAgent == "" {
		config.UserAgent = "stockhist/0.1"
	}

	jar, _ := cookiejar.New(nil)
	return &YahooSource{
		config: config,
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
			Jar:     jar,
		},
	}
}

// Fetch downloads [q.From, q.To) for q.Symbol. To is exclusive: rows the
// source returns outside the window are trimmed here, so callers never see
// the source's inclusivity quirks.
func (y *YahooSource) Fetch(ctx context.Context, q stock.Query) *Result {
	result := &Result{Query: q}

	observ.Log("remote_fetch_start", map[string]any{
		"symbol": q.Symbol,
		"from":   q.From.Format("2006-01-02"),
		"to":     q.To.Format("2006-01-02"),
	})

	if err := y.handshake(ctx, q.Symbol); err != nil {
		result.Err = ErrCommunication
		y.finish(result)
		return result
	}

	// period1/period2 are epoch seconds at midnight; this encoding stays
	// internal to the fetcher
	downloadURL := fmt.Sprintf(
		"%s/v7/finance/download/%s?period1=%d&period2=%d&interval=1d&events=history&includeAdjustedClose=true",
		y.config.DownloadBaseURL, url.PathEscape(q.Symbol), q.From.Unix(), q.To.Unix())

	body, status, err := y.get(ctx, downloadURL)
	if err != nil {
		result.Err = ErrCommunication
		y.finish(result)
		return result
	}

	switch {
	case status == http.StatusOK:
		rows, err := parseCSV(body, q)
		if err != nil {
			result.Err = ErrCommunication
		} else {
			result.Rows = rows
		}
	case status == http.StatusTooManyRequests:
		result.Err = ErrQuotaExceeded
	case status >= 400 && status < 500:
		result.Err = classifyClientError(body)
	default:
		result.Err = ErrCommunication
	}

	y.finish(result)
	return result
}

func (y *YahooSource) finish(r *Result) {
	observ.IncCounter("remote_fetches", map[string]string{"result": r.Err.String()})
	observ.Log("remote_fetch_done", map[string]any{
		"symbol": r.Query.Symbol,
		"rows":   len(r.Rows),
		"error":  r.Err.String(),
	})
}

// handshake hits the symbol's history page so the cookie jar carries a
// session for the download request.
func (y *YahooSource) handshake(ctx context.Context, symbol string) error {
	historyURL := fmt.Sprintf("%s/quote/%s/history", y.config.HistoryBaseURL, url.PathEscape(symbol))
	_, _, err := y.get(ctx, historyURL)
	return err
}

func (y *YahooSource) get(ctx context.Context, rawURL string) (body string, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", y.config.UserAgent)
	req.Header.Set("Connection", "keep-alive")

	resp, err := y.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	return string(b), resp.StatusCode, nil
}

// classifyClientError maps a 4xx body onto a domain error kind. Yahoo
// reports invalid or delisted symbols with a "No data found, symbol may be
// delisted" message; anything else in the 4xx family means the window holds
// no rows.
func classifyClientError(body string) ErrorKind {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "delisted") || strings.Contains(lower, "no data found") {
		return ErrSymbolNotFound
	}
	return ErrNoDataForRange
}

// parseCSV converts the download payload into rows. The payload is
// newline-delimited:
//
//	Date,Open,High,Low,Close,Adj Close,Volume
//	2022-01-03,134.070007,136.289993,133.630005,136.039993,132.809769,4605900
//
// The header line is dropped, rows with null fields (holidays) are skipped,
// and rows outside [q.From, q.To) are trimmed.
func parseCSV(body string, q stock.Query) ([]stock.PriceRow, error) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	var rows []stock.PriceRow
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i == 0 && strings.HasPrefix(strings.ToLower(line), "date,") {
			continue
		}
		if strings.Contains(line, "null") {
			continue
		}
		row, err := parseRow(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if row.Date.Before(q.From) || !row.Date.Before(q.To) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(line string) (stock.PriceRow, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 7 {
		return stock.PriceRow{}, fmt.Errorf("want 7 fields, got %d", len(fields))
	}

	date, err := time.ParseInLocation("2006-01-02", fields[0], time.UTC)
	if err != nil {
		return stock.PriceRow{}, fmt.Errorf("bad date %q: %w", fields[0], err)
	}

	var prices [5]float64
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return stock.PriceRow{}, fmt.Errorf("bad price %q: %w", fields[i+1], err)
		}
		if v < 0 {
			return stock.PriceRow{}, fmt.Errorf("negative price %q", fields[i+1])
		}
		prices[i] = v
	}

	volume, err := strconv.ParseInt(fields[6], 10, 64)
	if err != nil || volume < 0 {
		return stock.PriceRow{}, fmt.Errorf("bad volume %q", fields[6])
	}

	return stock.PriceRow{
		Date:     date,
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		AdjClose: prices[4],
		Volume:   volume,
	}, nil
}
