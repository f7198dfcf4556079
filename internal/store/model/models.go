package model

import "gorm.io/datatypes"

// TradeModel is one position row. Timestamps are unix milliseconds to match
// the quote cache tables.
type TradeModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	UserID       int64          `gorm:"column:user_id;index:idx_trades_user_pair_status,priority:1"`
	Pair         string         `gorm:"column:pair;index:idx_trades_user_pair_status,priority:2"`
	Side         string         `gorm:"column:side"`
	Quantity     float64        `gorm:"column:quantity"`
	EntryPrice   float64        `gorm:"column:entry_price"`
	TotalValue   float64        `gorm:"column:total_value"`
	Profit       float64        `gorm:"column:profit_loss"`
	ManualProfit *float64       `gorm:"column:manual_profit"`
	Status       string         `gorm:"column:status;index:idx_trades_user_pair_status,priority:3"`
	ClosePrice   *float64       `gorm:"column:close_price"`
	OpenedAtMS   int64          `gorm:"column:opened_at"`
	ClosedAtMS   *int64         `gorm:"column:closed_at"`
	Meta         datatypes.JSON `gorm:"column:meta;type:TEXT"`
}

func (TradeModel) TableName() string { return "trades" }

// TradeHistoryModel is the audit log, upserted by (user_id, operation) so a
// close overwrites the row its open created.
type TradeHistoryModel struct {
	ID        int64    `gorm:"column:id;primaryKey"`
	UserID    int64    `gorm:"column:user_id;uniqueIndex:idx_history_user_operation,priority:1"`
	Operation string   `gorm:"column:operation;uniqueIndex:idx_history_user_operation,priority:2"`
	Pair      string   `gorm:"column:pair"`
	Side      string   `gorm:"column:side"`
	Quantity  float64  `gorm:"column:quantity"`
	Price     float64  `gorm:"column:price"`
	Status    string   `gorm:"column:status;index"`
	Profit    *float64 `gorm:"column:profit_loss"`
	AtMS      int64    `gorm:"column:at;index"`
}

func (TradeHistoryModel) TableName() string { return "trading_history" }

// BalanceModel holds one simulated account balance per user.
type BalanceModel struct {
	UserID      int64   `gorm:"column:user_id;primaryKey"`
	Amount      float64 `gorm:"column:amount"`
	UpdatedAtMS int64   `gorm:"column:updated_at"`
}

func (BalanceModel) TableName() string { return "balances" }
