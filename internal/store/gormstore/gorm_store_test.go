package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cointrade/internal/keyedlock"
	"cointrade/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "trading.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPositionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, found, err := s.FindOpen(ctx, 1, "COINBASE:BTCUSD")
	require.NoError(t, err)
	assert.False(t, found)

	openedAt := time.Now()
	id, err := s.Insert(ctx, ledger.Position{
		UserID:     1,
		Pair:       "COINBASE:BTCUSD",
		Side:       ledger.SideBuy,
		Quantity:   10,
		EntryPrice: 100,
		TotalValue: 1000,
		Status:     ledger.PositionOpen,
		OpenedAt:   openedAt,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	p, found, err := s.FindOpen(ctx, 1, "COINBASE:BTCUSD")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ledger.SideBuy, p.Side)
	assert.Equal(t, 10.0, p.Quantity)
	assert.Nil(t, p.ManualProfit)

	require.NoError(t, s.Reduce(ctx, id, 6, 600, 40))
	p, _, err = s.FindOpen(ctx, 1, "COINBASE:BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, 6.0, p.Quantity)
	assert.Equal(t, 600.0, p.TotalValue)
	assert.Equal(t, 40.0, p.Profit)

	require.NoError(t, s.Reduce(ctx, id, 4, 400, 10))
	p, _, err = s.FindOpen(ctx, 1, "COINBASE:BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, 50.0, p.Profit, "partial-close profit accumulates")

	closedAt := time.Now()
	require.NoError(t, s.ClosePosition(ctx, id, 110, 90, closedAt))
	_, found, err = s.FindOpen(ctx, 1, "COINBASE:BTCUSD")
	require.NoError(t, err)
	assert.False(t, found, "closed positions are no longer netting candidates")

	err = s.ClosePosition(ctx, id, 110, 90, closedAt)
	assert.Error(t, err, "closing twice must fail")
}

func TestFindOpenReturnsOldest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Insert(ctx, ledger.Position{UserID: 2, Pair: "COINBASE:ETHUSD", Side: ledger.SideSell, Quantity: 1, Status: ledger.PositionOpen, OpenedAt: time.Now()})
	require.NoError(t, err)
	_, err = s.Insert(ctx, ledger.Position{UserID: 2, Pair: "COINBASE:ETHUSD", Side: ledger.SideSell, Quantity: 2, Status: ledger.PositionOpen, OpenedAt: time.Now()})
	require.NoError(t, err)

	p, found, err := s.FindOpen(ctx, 2, "COINBASE:ETHUSD")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, p.ID)
}

func TestBalanceAdjust(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bal, err := s.Balance(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, bal, "unknown user starts at zero")

	bal, err = s.Adjust(ctx, 5, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, bal)

	bal, err = s.Adjust(ctx, 5, -300.10)
	require.NoError(t, err)
	assert.Equal(t, 699.90, bal, "decimal math keeps cents exact")

	_, err = s.Adjust(ctx, 5, -700)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	bal, err = s.Balance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 699.90, bal, "rejected debit leaves balance untouched")
}

func TestHistoryUpsertByOperation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now()
	require.NoError(t, s.Record(ctx, ledger.HistoryEntry{
		UserID: 3, Operation: "T1", Pair: "COINBASE:BTCUSD",
		Side: ledger.SideBuy, Quantity: 2, Price: 100,
		Status: ledger.HistoryPending, At: at,
	}))

	profit := 40.0
	require.NoError(t, s.Record(ctx, ledger.HistoryEntry{
		UserID: 3, Operation: "T1", Pair: "COINBASE:BTCUSD",
		Side: ledger.SideSell, Quantity: 2, Price: 120,
		Status: ledger.HistoryComplete, Profit: &profit, At: at.Add(time.Minute),
	}))

	list, err := s.History(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, list, 1, "same operation updates in place")
	assert.Equal(t, ledger.HistoryComplete, list[0].Status)
	require.NotNil(t, list[0].Profit)
	assert.Equal(t, 40.0, *list[0].Profit)

	// Another user's T1 is a distinct row.
	require.NoError(t, s.Record(ctx, ledger.HistoryEntry{
		UserID: 4, Operation: "T1", Pair: "COINBASE:BTCUSD",
		Side: ledger.SideBuy, Quantity: 1, Price: 100,
		Status: ledger.HistoryPending, At: at,
	}))
	list, err = s.History(ctx, 4, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestManualProfitOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, ledger.Position{UserID: 6, Pair: "COINBASE:BTCUSD", Side: ledger.SideSell, Quantity: 5, EntryPrice: 50, Status: ledger.PositionOpen, OpenedAt: time.Now()})
	require.NoError(t, err)

	override := 25.0
	require.NoError(t, s.SetManualProfit(ctx, id, &override))
	p, _, err := s.FindOpen(ctx, 6, "COINBASE:BTCUSD")
	require.NoError(t, err)
	require.NotNil(t, p.ManualProfit)
	assert.Equal(t, 25.0, *p.ManualProfit)

	require.NoError(t, s.SetManualProfit(ctx, id, nil))
	p, _, err = s.FindOpen(ctx, 6, "COINBASE:BTCUSD")
	require.NoError(t, err)
	assert.Nil(t, p.ManualProfit, "override can be cleared")
}

func TestExecutorAgainstGormStore(t *testing.T) {
	// End to end: the executor drives the real store through a net-and-reopen.
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Adjust(ctx, 9, 1000)
	require.NoError(t, err)

	exec := ledger.NewExecutor(s, s, s, keyedlock.NewTable(), ledger.WithMinOrderInterval(0))

	res, err := exec.ExecuteTrade(ctx, ledger.Order{UserID: 9, Pair: "BTC/USD", Side: ledger.SideBuy, Quantity: 5}, 100, true)
	require.NoError(t, err)
	assert.Equal(t, 500.0, res.Balance)

	res, err = exec.ExecuteTrade(ctx, ledger.Order{UserID: 9, Pair: "BTC/USD", Side: ledger.SideSell, Quantity: 5}, 120, true)
	require.NoError(t, err)
	assert.False(t, res.Opened)
	assert.Equal(t, 100.0, res.Profit)
	assert.Equal(t, 1100.0, res.Balance)

	list, err := s.History(ctx, 9, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ledger.HistoryComplete, list[0].Status)
}
