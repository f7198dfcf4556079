package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrInsufficientFunds is returned by BalanceStore.Adjust when a debit
// exceeds the user's current balance. Trade execution never retries it.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrTradeLockTimeout is returned when per-user-pair serialization could not
// be obtained within the bounded wait.
var ErrTradeLockTimeout = errors.New("trade lock wait timed out")

// BalanceStore is the sole authority over balance mutation. Adjust applies
// delta atomically with respect to concurrent adjustments for the same user
// and returns the new balance.
type BalanceStore interface {
	Adjust(ctx context.Context, userID int64, delta float64) (float64, error)
	Balance(ctx context.Context, userID int64) (float64, error)
}

// PositionStore persists position rows. FindOpen returns the oldest open
// position for (userID, pair); absence is a valid state, not an error.
type PositionStore interface {
	FindOpen(ctx context.Context, userID int64, pair string) (Position, bool, error)
	Insert(ctx context.Context, p Position) (int64, error)
	Reduce(ctx context.Context, id int64, quantity, totalValue, addProfit float64) error
	ClosePosition(ctx context.Context, id int64, closePrice, profit float64, closedAt time.Time) error
	LastOrderAt(ctx context.Context, userID int64) (time.Time, bool, error)
}

// HistoryStatus mirrors the lifecycle a history row can report.
type HistoryStatus string

const (
	HistoryPending   HistoryStatus = "pending"
	HistoryComplete  HistoryStatus = "complete"
	HistoryCancelled HistoryStatus = "cancelled"
)

// HistoryEntry captures one state transition of a position for the audit log.
// Entries are upserted by (UserID, Operation) so a close updates the row its
// open created.
type HistoryEntry struct {
	UserID    int64         `json:"user_id"`
	Operation string        `json:"operation"`
	Pair      string        `json:"pair"`
	Side      Side          `json:"side"`
	Quantity  float64       `json:"quantity"`
	Price     float64       `json:"price"`
	Status    HistoryStatus `json:"status"`
	Profit    *float64      `json:"profit,omitempty"`
	At        time.Time     `json:"at"`
}

// HistoryRecorder is write-only from the executor's perspective.
type HistoryRecorder interface {
	Record(ctx context.Context, e HistoryEntry) error
}
