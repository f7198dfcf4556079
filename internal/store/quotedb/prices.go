package quotedb

import (
	"context"
	"database/sql"
	"time"
)

// PriceRow is one instrument row from a bulk snapshot, keyed by the
// normalized instrument name so repeated refreshes update in place.
type PriceRow struct {
	ID            int64     `json:"id"`
	Name          string    `json:"row_name"`
	Key           string    `json:"row_name_normalized"`
	Value         *float64  `json:"value"`
	Change        *float64  `json:"change"`
	ChangePercent *float64  `json:"change_percent"`
	Open          *float64  `json:"open"`
	High          *float64  `json:"high"`
	Low           *float64  `json:"low"`
	Previous      *float64  `json:"previous"`
	Raw           string    `json:"raw_payload,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UpsertRow writes or replaces the snapshot row for row.Key.
func (s *Store) UpsertRow(ctx context.Context, row PriceRow) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO quotes_prices
			(row_name, row_name_normalized, value_num, change_num, change_percent_num,
			 open_num, high_num, low_num, previous_num, raw_payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(row_name_normalized) DO UPDATE SET
			row_name = excluded.row_name,
			value_num = excluded.value_num,
			change_num = excluded.change_num,
			change_percent_num = excluded.change_percent_num,
			open_num = excluded.open_num,
			high_num = excluded.high_num,
			low_num = excluded.low_num,
			previous_num = excluded.previous_num,
			raw_payload = excluded.raw_payload,
			updated_at = excluded.updated_at`,
		row.Name,
		row.Key,
		nullable(row.Value),
		nullable(row.Change),
		nullable(row.ChangePercent),
		nullable(row.Open),
		nullable(row.High),
		nullable(row.Low),
		nullable(row.Previous),
		row.Raw,
		row.UpdatedAt.UnixMilli(),
	)
	return err
}

// GetByKey returns the snapshot row for a normalized key.
func (s *Store) GetByKey(ctx context.Context, key string) (PriceRow, bool, error) {
	var row PriceRow
	db, err := s.handle()
	if err != nil {
		return row, false, err
	}
	r := db.QueryRowContext(ctx, `SELECT id, row_name, row_name_normalized, value_num, change_num,
			change_percent_num, open_num, high_num, low_num, previous_num, raw_payload, updated_at
		FROM quotes_prices WHERE row_name_normalized = ?`, key)
	row, err = scanPriceRow(r)
	if err != nil {
		if err == sql.ErrNoRows {
			return row, false, nil
		}
		return row, false, err
	}
	return row, true, nil
}

// ListRecent returns up to limit rows ordered by most recently updated.
// The limit is clamped to [1, 1000]; non-positive values fall back to 300.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]PriceRow, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 300
	}
	if limit > 1000 {
		limit = 1000
	}
	rows, err := db.QueryContext(ctx, `SELECT id, row_name, row_name_normalized, value_num, change_num,
			change_percent_num, open_num, high_num, low_num, previous_num, raw_payload, updated_at
		FROM quotes_prices ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []PriceRow
	for rows.Next() {
		row, err := scanPriceRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPriceRow(scanner rowScanner) (PriceRow, error) {
	var (
		row       PriceRow
		value     sql.NullFloat64
		change    sql.NullFloat64
		changePct sql.NullFloat64
		open      sql.NullFloat64
		high      sql.NullFloat64
		low       sql.NullFloat64
		previous  sql.NullFloat64
		updatedAt int64
	)
	if err := scanner.Scan(&row.ID, &row.Name, &row.Key, &value, &change, &changePct,
		&open, &high, &low, &previous, &row.Raw, &updatedAt); err != nil {
		return row, err
	}
	row.Value = nullFloat(value)
	row.Change = nullFloat(change)
	row.ChangePercent = nullFloat(changePct)
	row.Open = nullFloat(open)
	row.High = nullFloat(high)
	row.Low = nullFloat(low)
	row.Previous = nullFloat(previous)
	row.UpdatedAt = time.UnixMilli(updatedAt)
	return row, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
