package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of an order or an open position.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite returns the side an order must carry to net against this one.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func ParseSide(raw string) (Side, error) {
	s := Side(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid side %q", raw)
	}
	return s, nil
}

// Order is a transient trade request. It is consumed by the executor and not
// persisted itself; history is recorded separately.
type Order struct {
	UserID   int64
	Pair     string
	Side     Side
	Quantity float64
}

// PositionStatus tracks the open/closed lifecycle of a position row.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is one open (or closed) position bucket. At most one open position
// exists per (UserID, Pair); the executor either extends, partially closes,
// fully closes, or closes-then-reopens-opposite.
//
// ManualProfit is an explicit admin override of the realized profit applied
// when the position closes. nil means no override; a zero value is a genuine
// zero-profit override.
type Position struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"user_id"`
	Pair         string         `json:"pair"`
	Side         Side           `json:"side"`
	Quantity     float64        `json:"quantity"`
	EntryPrice   float64        `json:"entry_price"`
	TotalValue   float64        `json:"total_value"`
	Profit       float64        `json:"profit"`
	ManualProfit *float64       `json:"manual_profit,omitempty"`
	Status       PositionStatus `json:"status"`
	ClosePrice   *float64       `json:"close_price,omitempty"`
	OpenedAt     time.Time      `json:"opened_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
}

// TradeResult reports one executed order back to the caller.
type TradeResult struct {
	Balance   float64 `json:"balance"`
	Price     float64 `json:"price"`
	Profit    float64 `json:"profit"`
	Operation string  `json:"operation"`
	Opened    bool    `json:"opened"`
}

// OperationID derives the history operation number for a position row.
func OperationID(positionID int64) string {
	return fmt.Sprintf("T%d", positionID)
}
