// Package store persists raw OHLCV bars in SQLite. It is the storage
// collaborator the engine consumes: bars come back keyed by (symbol,
// timestamp) in ascending timestamp order, with no dedup or ordering
// logic left to the core.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"backscan/pkg/model"
)

// Store wraps the bar database.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// Open opens (or creates) the database at path and runs migrations.
// Loaded bar timestamps are rendered in loc (nil means UTC), which is
// what session-hour filtering operates on.
func Open(path string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so concurrent scans can read while an import writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if loc == nil {
		loc = time.UTC
	}
	s := &Store{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (symbol, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_ts ON bars(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// SaveBars upserts a batch in one transaction. Re-importing the same
// file is idempotent because (symbol, ts) is the primary key.
func (s *Store) SaveBars(ctx context.Context, bars []model.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO bars
		(symbol, ts, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Time.Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert bar %s@%d: %w", b.Symbol, b.Time.Unix(), err)
		}
	}
	return tx.Commit()
}

// LoadBars returns the symbol's bars in [from, to), ascending by
// timestamp. Derived indicator fields are left for the enrichment stage.
func (s *Store) LoadBars(ctx context.Context, symbol string, from, to time.Time) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, open, high, low, close, volume
		FROM bars WHERE symbol = ? AND ts >= ? AND ts < ? ORDER BY ts ASC`,
		symbol, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var ts int64
		b := model.Bar{Symbol: symbol}
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = time.Unix(ts, 0).In(s.loc)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// CountBars returns how many bars are stored for the symbol.
func (s *Store) CountBars(ctx context.Context, symbol string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bars WHERE symbol = ?`, symbol).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}
