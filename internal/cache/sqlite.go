package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"stockhist/internal/observ"
	"stockhist/internal/stock"
)

const dateFormat = "2006-01-02"

// SQLiteStore persists price rows to a SQLite database, keyed by
// (symbol, date).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the CLI can read while a backfill writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	observ.Log("cache_opened", map[string]any{"path": path})
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_rows (
			symbol    TEXT NOT NULL,
			date      TEXT NOT NULL,
			open      REAL NOT NULL,
			high      REAL NOT NULL,
			low       REAL NOT NULL,
			close     REAL NOT NULL,
			adj_close REAL NOT NULL,
			volume    INTEGER NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, symbol string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM price_rows WHERE symbol = ? LIMIT 1`, symbol).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", symbol, err)
	}
	return true, nil
}

func (s *SQLiteStore) ReadRange(ctx context.Context, symbol string, from, to time.Time) ([]stock.PriceRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, open, high, low, close, adj_close, volume
		 FROM price_rows
		 WHERE symbol = ? AND date >= ? AND date < ?
		 ORDER BY date`,
		symbol, from.Format(dateFormat), to.Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []stock.PriceRow
	for rows.Next() {
		var dateStr string
		var row stock.PriceRow
		if err := rows.Scan(&dateStr, &row.Open, &row.High, &row.Low,
			&row.Close, &row.AdjClose, &row.Volume); err != nil {
			return nil, fmt.Errorf("scan %s: %w", symbol, err)
		}
		row.Date, err = time.ParseInLocation(dateFormat, dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bad cached date %q: %w", dateStr, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, symbol string, rows []stock.PriceRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", symbol, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO price_rows (symbol, date, open, high, low, close, adj_close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (symbol, date) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", symbol, err)
	}
	defer stmt.Close()

	written := 0
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, symbol, row.Date.Format(dateFormat),
			row.Open, row.High, row.Low, row.Close, row.AdjClose, row.Volume)
		if err != nil {
			return written, fmt.Errorf("append %s %s: %w",
				symbol, row.Date.Format(dateFormat), err)
		}
		n, _ := res.RowsAffected()
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append %s: %w", symbol, err)
	}

	observ.IncCounterBy("cache_rows_appended", map[string]string{"symbol": symbol}, float64(written))
	return written, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
