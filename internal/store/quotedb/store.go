package quotedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cointrade/internal/market"

	_ "modernc.org/sqlite"
)

// Store is the durable quote store backing both the per-pair market data
// cache and the bulk snapshot price table. It owns a single SQLite handle
// unless an external one is supplied.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// NewStore opens (or creates) the SQLite database at path and ensures the
// schema exists.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("quote db path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB reuses a connection opened elsewhere (for example by GORM)
// so both layers share one SQLite handle and its lock.
func UseExternalDB(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("external db must not be nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &Store{db: db, ownsDB: false}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("quote store is closed")
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS market_data_cache (
			pair TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			value REAL,
			change_value REAL,
			change_percent REAL,
			open REAL,
			high REAL,
			low REAL,
			previous REAL,
			is_stale INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			last_fetch_ms INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_market_data_cache_updated ON market_data_cache(updated_at);`,
		`CREATE TABLE IF NOT EXISTS quotes_prices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			row_name TEXT NOT NULL,
			row_name_normalized TEXT NOT NULL UNIQUE,
			value_num REAL,
			change_num REAL,
			change_percent_num REAL,
			open_num REAL,
			high_num REAL,
			low_num REAL,
			previous_num REAL,
			raw_payload TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_prices_updated ON quotes_prices(updated_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping reports whether the backing database is reachable. The market cache
// uses it to decide between this store and its file fallback.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Read returns the cached record for a normalized pair.
func (s *Store) Read(ctx context.Context, pair string) (market.CacheRecord, bool, error) {
	var rec market.CacheRecord
	db, err := s.handle()
	if err != nil {
		return rec, false, err
	}
	row := db.QueryRowContext(ctx, `SELECT pair, source, payload, is_stale, updated_at, last_fetch_ms, last_error
		FROM market_data_cache WHERE pair = ?`, pair)
	var (
		payload   string
		isStale   int
		updatedAt int64
	)
	if err := row.Scan(&rec.Pair, &rec.Source, &payload, &isStale, &updatedAt, &rec.FetchMillis, &rec.LastError); err != nil {
		if err == sql.ErrNoRows {
			return rec, false, nil
		}
		return rec, false, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return rec, false, fmt.Errorf("decoding cached payload for %s: %w", pair, err)
	}
	rec.IsStale = isStale != 0
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return rec, true, nil
}

// Upsert writes the record, replacing any previous row for the pair. The
// flattened numeric columns are denormalized from the payload so operators
// can query the cache table directly.
func (s *Store) Upsert(ctx context.Context, rec market.CacheRecord) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", rec.Pair, err)
	}
	isStale := 0
	if rec.IsStale {
		isStale = 1
	}
	_, err = db.ExecContext(ctx, `INSERT INTO market_data_cache
			(pair, source, payload, value, change_value, change_percent, open, high, low, previous,
			 is_stale, updated_at, last_fetch_ms, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair) DO UPDATE SET
			source = excluded.source,
			payload = excluded.payload,
			value = excluded.value,
			change_value = excluded.change_value,
			change_percent = excluded.change_percent,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			previous = excluded.previous,
			is_stale = excluded.is_stale,
			updated_at = excluded.updated_at,
			last_fetch_ms = excluded.last_fetch_ms,
			last_error = excluded.last_error`,
		rec.Pair,
		rec.Source,
		string(payload),
		nullable(rec.Payload.Value),
		nullable(rec.Payload.Change),
		nullable(rec.Payload.ChangePercent),
		nullable(rec.Payload.Open),
		nullable(rec.Payload.High),
		nullable(rec.Payload.Low),
		nullable(rec.Payload.Previous),
		isStale,
		rec.UpdatedAt.UnixMilli(),
		rec.FetchMillis,
		rec.LastError,
	)
	return err
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
