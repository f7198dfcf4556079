package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cointrade/internal/ledger"
	storemodel "cointrade/internal/store/model"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type tradeModel = storemodel.TradeModel
type historyModel = storemodel.TradeHistoryModel
type balanceModel = storemodel.BalanceModel

// GormStore implements position, balance and history storage using Gorm +
// SQLite. It is the transactional side of the system; the quote cache lives
// in its own store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the trading database at path and migrates the schema.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path must not be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tradeModel{}, &historyModel{}, &balanceModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP
	// reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB so the quote store can share the
// connection instead of opening a second handle on the same file.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

var (
	_ ledger.PositionStore   = (*GormStore)(nil)
	_ ledger.BalanceStore    = (*GormStore)(nil)
	_ ledger.HistoryRecorder = (*GormStore)(nil)
)

// --------------------- PositionStore ---------------------

func (s *GormStore) FindOpen(ctx context.Context, userID int64, pair string) (ledger.Position, bool, error) {
	var m tradeModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND pair = ? AND status = ?", userID, pair, string(ledger.PositionOpen)).
		Order("id ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Position{}, false, nil
		}
		return ledger.Position{}, false, err
	}
	return tradeModelToPosition(m), true, nil
}

func (s *GormStore) Insert(ctx context.Context, p ledger.Position) (int64, error) {
	m := tradeModel{
		UserID:       p.UserID,
		Pair:         p.Pair,
		Side:         string(p.Side),
		Quantity:     p.Quantity,
		EntryPrice:   p.EntryPrice,
		TotalValue:   p.TotalValue,
		Profit:       p.Profit,
		ManualProfit: p.ManualProfit,
		Status:       string(p.Status),
		OpenedAtMS:   p.OpenedAt.UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, err
	}
	return m.ID, nil
}

func (s *GormStore) Reduce(ctx context.Context, id int64, quantity, totalValue, addProfit float64) error {
	res := s.db.WithContext(ctx).Model(&tradeModel{}).
		Where("id = ? AND status = ?", id, string(ledger.PositionOpen)).
		Updates(map[string]interface{}{
			"quantity":    quantity,
			"total_value": totalValue,
			"profit_loss": gorm.Expr("profit_loss + ?", addProfit),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) ClosePosition(ctx context.Context, id int64, closePrice, profit float64, closedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&tradeModel{}).
		Where("id = ? AND status = ?", id, string(ledger.PositionOpen)).
		Updates(map[string]interface{}{
			"status":      string(ledger.PositionClosed),
			"close_price": closePrice,
			"profit_loss": profit,
			"closed_at":   closedAt.UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) LastOrderAt(ctx context.Context, userID int64) (time.Time, bool, error) {
	var m tradeModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("opened_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.UnixMilli(m.OpenedAtMS), true, nil
}

func tradeModelToPosition(m tradeModel) ledger.Position {
	p := ledger.Position{
		ID:           m.ID,
		UserID:       m.UserID,
		Pair:         m.Pair,
		Side:         ledger.Side(m.Side),
		Quantity:     m.Quantity,
		EntryPrice:   m.EntryPrice,
		TotalValue:   m.TotalValue,
		Profit:       m.Profit,
		ManualProfit: m.ManualProfit,
		Status:       ledger.PositionStatus(m.Status),
		ClosePrice:   m.ClosePrice,
		OpenedAt:     time.UnixMilli(m.OpenedAtMS),
	}
	if m.ClosedAtMS != nil {
		t := time.UnixMilli(*m.ClosedAtMS)
		p.ClosedAt = &t
	}
	return p
}

// --------------------- BalanceStore ---------------------

// Adjust applies delta inside a transaction. The math runs on decimals so
// repeated small debits do not drift the stored balance.
func (s *GormStore) Adjust(ctx context.Context, userID int64, delta float64) (float64, error) {
	var result float64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row balanceModel
		err := tx.Where("user_id = ?", userID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = balanceModel{UserID: userID}
		} else if err != nil {
			return err
		}
		next := decimal.NewFromFloat(row.Amount).Add(decimal.NewFromFloat(delta))
		if delta < 0 && next.IsNegative() {
			result = row.Amount
			return ledger.ErrInsufficientFunds
		}
		row.Amount = next.InexactFloat64()
		row.UpdatedAtMS = time.Now().UnixMilli()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return err
		}
		result = row.Amount
		return nil
	})
	return result, err
}

func (s *GormStore) Balance(ctx context.Context, userID int64) (float64, error) {
	var row balanceModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Amount, nil
}

// Deposit credits a user account. Used by account provisioning, not by the
// trade executor.
func (s *GormStore) Deposit(ctx context.Context, userID int64, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deposit amount must be positive, got %v", amount)
	}
	return s.Adjust(ctx, userID, amount)
}

// --------------------- HistoryRecorder ---------------------

func (s *GormStore) Record(ctx context.Context, e ledger.HistoryEntry) error {
	m := historyModel{
		UserID:    e.UserID,
		Operation: e.Operation,
		Pair:      e.Pair,
		Side:      string(e.Side),
		Quantity:  e.Quantity,
		Price:     e.Price,
		Status:    string(e.Status),
		Profit:    e.Profit,
		AtMS:      e.At.UnixMilli(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "operation"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"pair":        gorm.Expr("excluded.pair"),
			"side":        gorm.Expr("excluded.side"),
			"quantity":    gorm.Expr("excluded.quantity"),
			"price":       gorm.Expr("excluded.price"),
			"status":      gorm.Expr("excluded.status"),
			"profit_loss": gorm.Expr("COALESCE(excluded.profit_loss, trading_history.profit_loss)"),
			"at":          gorm.Expr("excluded.at"),
		}),
	}).Create(&m).Error
}

// History returns the most recent entries for a user, newest first.
func (s *GormStore) History(ctx context.Context, userID int64, limit int) ([]ledger.HistoryEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []historyModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]ledger.HistoryEntry, 0, len(models))
	for _, m := range models {
		out = append(out, ledger.HistoryEntry{
			UserID:    m.UserID,
			Operation: m.Operation,
			Pair:      m.Pair,
			Side:      ledger.Side(m.Side),
			Quantity:  m.Quantity,
			Price:     m.Price,
			Status:    ledger.HistoryStatus(m.Status),
			Profit:    m.Profit,
			At:        time.UnixMilli(m.AtMS),
		})
	}
	return out, nil
}

// OpenPositions returns the user's open positions, oldest first.
func (s *GormStore) OpenPositions(ctx context.Context, userID int64) ([]ledger.Position, error) {
	var models []tradeModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(ledger.PositionOpen)).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Position, 0, len(models))
	for _, m := range models {
		out = append(out, tradeModelToPosition(m))
	}
	return out, nil
}

// SetManualProfit stores or clears an admin profit override on an open
// position.
func (s *GormStore) SetManualProfit(ctx context.Context, id int64, profit *float64) error {
	res := s.db.WithContext(ctx).Model(&tradeModel{}).
		Where("id = ? AND status = ?", id, string(ledger.PositionOpen)).
		Update("manual_profit", profit)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
