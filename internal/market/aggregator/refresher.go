package aggregator

import (
	"context"
	"time"

	"cointrade/internal/logger"
	"cointrade/internal/market"
	"cointrade/internal/store/quotedb"

	"github.com/google/uuid"
)

// RowSource is what the refresher pulls snapshots from.
type RowSource interface {
	FetchRows(ctx context.Context) ([]Row, error)
}

// PriceSink is the subset of the price store the refresher writes to.
type PriceSink interface {
	UpsertRow(ctx context.Context, row quotedb.PriceRow) error
}

// Report summarizes one refresh run.
type Report struct {
	RunID        string `json:"run_id"`
	RowsReceived int    `json:"rows_received"`
	RowsUpserted int    `json:"rows_upserted"`
	TookMS       int64  `json:"took_ms"`
}

// Refresher pulls a full snapshot and upserts every usable row into the
// price table. The HTTP refresh endpoint and the periodic loop share it.
type Refresher struct {
	source RowSource
	sink   PriceSink
	now    func() time.Time
}

func NewRefresher(source RowSource, sink PriceSink) *Refresher {
	return &Refresher{source: source, sink: sink, now: time.Now}
}

// Refresh runs one snapshot cycle. Rows whose normalized key is empty are
// skipped; a failed upsert skips the row but does not abort the run.
func (r *Refresher) Refresh(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	start := r.now()

	rows, err := r.source.FetchRows(ctx)
	if err != nil {
		report.TookMS = time.Since(start).Milliseconds()
		logger.Errorf("snapshot refresh %s failed: %v", report.RunID, err)
		return report, err
	}
	report.RowsReceived = len(rows)

	updated := r.now()
	for _, row := range rows {
		key := market.NormalizeRowKey(row.Name)
		if key == "" {
			continue
		}
		err := r.sink.UpsertRow(ctx, quotedb.PriceRow{
			Name:          row.Name,
			Key:           key,
			Value:         row.Value,
			Change:        row.Change,
			ChangePercent: row.ChangePercent,
			Open:          row.Open,
			High:          row.High,
			Low:           row.Low,
			Previous:      row.Previous,
			Raw:           row.Raw,
			UpdatedAt:     updated,
		})
		if err != nil {
			logger.Warnf("snapshot refresh %s: upsert %q failed: %v", report.RunID, key, err)
			continue
		}
		report.RowsUpserted++
	}

	report.TookMS = time.Since(start).Milliseconds()
	logger.Infof("snapshot refresh %s done received=%d upserted=%d took=%dms",
		report.RunID, report.RowsReceived, report.RowsUpserted, report.TookMS)
	return report, nil
}

// Run executes Refresh on a fixed interval until the context is cancelled.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
