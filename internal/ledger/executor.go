package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cointrade/internal/keyedlock"
	"cointrade/internal/logger"
	"cointrade/internal/market"
)

const (
	defaultTradeLockWait    = 5 * time.Second
	defaultMinOrderInterval = 60 * time.Second
)

// Executor runs simulated trades against user balances with position netting.
// All mutations for one (userID, pair) are serialized through the keyed lock,
// so partial-close quantity math never races. Only that single lock is held
// at a time.
type Executor struct {
	positions PositionStore
	balances  BalanceStore
	history   HistoryRecorder
	locks     keyedlock.Lock

	lockWait         time.Duration
	minOrderInterval time.Duration
	now              func() time.Time
}

type ExecutorOption func(*Executor)

func WithTradeLockWait(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.lockWait = d
		}
	}
}

func WithMinOrderInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d >= 0 {
			e.minOrderInterval = d
		}
	}
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewExecutor(positions PositionStore, balances BalanceStore, history HistoryRecorder, locks keyedlock.Lock, opts ...ExecutorOption) *Executor {
	e := &Executor{
		positions:        positions,
		balances:         balances,
		history:          history,
		locks:            locks,
		lockWait:         defaultTradeLockWait,
		minOrderInterval: defaultMinOrderInterval,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CanPlaceOrder is the advisory rate-limit precondition: it reports false
// while the user's most recent order is younger than the minimum interval.
// Callers must check it before ExecuteTrade; the executor itself does not.
func (e *Executor) CanPlaceOrder(ctx context.Context, userID int64) (bool, error) {
	if e.minOrderInterval <= 0 {
		return true, nil
	}
	last, found, err := e.positions.LastOrderAt(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("looking up last order: %w", err)
	}
	if !found {
		return true, nil
	}
	return e.now().Sub(last) >= e.minOrderInterval, nil
}

// ExecuteTrade applies order at marketPrice. With closeOpposing set (the
// default behavior), an open position on the opposite side is netted first:
// up to its quantity is closed at the market price (or at the back-derived
// price of a manual profit override), and any remainder of the order opens a
// fresh position on the order's own side. Without an opposing position the
// whole order opens a new position.
//
// Failures are terminal per request: an insufficient-funds debit leaves no
// partial open, though a netting close that already settled stays applied.
func (e *Executor) ExecuteTrade(ctx context.Context, order Order, marketPrice float64, closeOpposing bool) (TradeResult, error) {
	if !order.Side.Valid() {
		return TradeResult{}, fmt.Errorf("invalid order side %q", order.Side)
	}
	if order.Quantity <= 0 {
		return TradeResult{}, fmt.Errorf("order quantity must be positive, got %v", order.Quantity)
	}
	if marketPrice <= 0 {
		return TradeResult{}, fmt.Errorf("market price must be positive, got %v", marketPrice)
	}

	pair := market.NormalizePair(order.Pair)
	key := tradeLockKey(order.UserID, pair)
	if !e.locks.TryAcquire(ctx, key, e.lockWait) {
		return TradeResult{}, ErrTradeLockTimeout
	}
	defer e.locks.Release(key)

	if closeOpposing {
		open, found, err := e.positions.FindOpen(ctx, order.UserID, pair)
		if err != nil {
			return TradeResult{}, fmt.Errorf("looking up open position: %w", err)
		}
		if found && open.Side == order.Side.Opposite() {
			return e.netAgainst(ctx, order, pair, open, marketPrice)
		}
	}
	return e.openPosition(ctx, order, pair, marketPrice, 0)
}

// netAgainst closes up to order.Quantity of the opposing open position, then
// opens the remainder (if any) as a fresh position on the order's side.
func (e *Executor) netAgainst(ctx context.Context, order Order, pair string, open Position, marketPrice float64) (TradeResult, error) {
	closeQty := order.Quantity
	if open.Quantity < closeQty {
		closeQty = open.Quantity
	}

	closePrice := marketPrice
	var profit float64
	if open.ManualProfit != nil {
		// Admin-set profit takes precedence; derive the close price from it
		// so the recorded fill is consistent with the forced P/L.
		profit = *open.ManualProfit
		if open.Side == SideSell {
			closePrice = open.EntryPrice - profit/closeQty
		} else {
			closePrice = open.EntryPrice + profit/closeQty
		}
	} else if open.Side == SideSell {
		profit = (open.EntryPrice - closePrice) * closeQty
	} else {
		profit = (closePrice - open.EntryPrice) * closeQty
	}

	// Closing a short returns the reserved entry value plus P/L; closing a
	// long returns the sale proceeds.
	var credit float64
	if open.Side == SideSell {
		credit = open.EntryPrice*closeQty + profit
	} else {
		credit = closePrice * closeQty
	}
	balance, err := e.balances.Adjust(ctx, order.UserID, credit)
	if err != nil {
		return TradeResult{}, fmt.Errorf("crediting close proceeds: %w", err)
	}

	now := e.now()
	remaining := open.Quantity - closeQty
	if remaining > 0 {
		if err := e.positions.Reduce(ctx, open.ID, remaining, open.EntryPrice*remaining, profit); err != nil {
			return TradeResult{}, fmt.Errorf("reducing position %d: %w", open.ID, err)
		}
	} else {
		if err := e.positions.ClosePosition(ctx, open.ID, closePrice, profit, now); err != nil {
			return TradeResult{}, fmt.Errorf("closing position %d: %w", open.ID, err)
		}
	}

	op := OperationID(open.ID)
	e.record(ctx, HistoryEntry{
		UserID:    order.UserID,
		Operation: op,
		Pair:      pair,
		Side:      order.Side,
		Quantity:  closeQty,
		Price:     closePrice,
		Status:    HistoryComplete,
		Profit:    &profit,
		At:        now,
	})
	logger.Infof("position netted user=%d pair=%s qty=%v price=%v profit=%v remaining=%v",
		order.UserID, pair, closeQty, closePrice, profit, remaining)

	if remainder := order.Quantity - closeQty; remainder > 0 {
		// The close above already settled; the reopen is its own
		// all-or-nothing step at the market price.
		rest := order
		rest.Quantity = remainder
		return e.openPosition(ctx, rest, pair, marketPrice, profit)
	}
	return TradeResult{Balance: balance, Price: closePrice, Profit: profit, Operation: op, Opened: false}, nil
}

// openPosition debits the order value and inserts a fresh open position.
// carriedProfit is the profit realized by a netting close earlier in the same
// order, reported through to the caller.
func (e *Executor) openPosition(ctx context.Context, order Order, pair string, price, carriedProfit float64) (TradeResult, error) {
	total := price * order.Quantity
	balance, err := e.balances.Adjust(ctx, order.UserID, -total)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			logger.Warnf("order rejected user=%d pair=%s total=%v: insufficient balance", order.UserID, pair, total)
			return TradeResult{}, fmt.Errorf("opening %s %v %s: %w", order.Side, order.Quantity, pair, ErrInsufficientFunds)
		}
		return TradeResult{}, fmt.Errorf("debiting order value: %w", err)
	}

	now := e.now()
	id, err := e.positions.Insert(ctx, Position{
		UserID:     order.UserID,
		Pair:       pair,
		Side:       order.Side,
		Quantity:   order.Quantity,
		EntryPrice: price,
		TotalValue: total,
		Status:     PositionOpen,
		OpenedAt:   now,
	})
	if err != nil {
		return TradeResult{}, fmt.Errorf("inserting position: %w", err)
	}

	op := OperationID(id)
	e.record(ctx, HistoryEntry{
		UserID:    order.UserID,
		Operation: op,
		Pair:      pair,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     price,
		Status:    HistoryPending,
		At:        now,
	})
	logger.Infof("position opened user=%d pair=%s side=%s qty=%v price=%v", order.UserID, pair, order.Side, order.Quantity, price)
	return TradeResult{Balance: balance, Price: price, Profit: carriedProfit, Operation: op, Opened: true}, nil
}

func (e *Executor) record(ctx context.Context, entry HistoryEntry) {
	if err := e.history.Record(ctx, entry); err != nil {
		// History is an audit trail, not part of the transactional core;
		// losing an entry must not fail the trade.
		logger.Errorf("recording trade history op=%s: %v", entry.Operation, err)
	}
}

func tradeLockKey(userID int64, pair string) string {
	return fmt.Sprintf("trade_%d_%s", userID, pair)
}
