package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedSourceOpensAfterThreshold(t *testing.T) {
	src := &fakeSource{}
	src.setErr(NewQuoteError(ErrUpstreamUnavailable, "down", nil))
	guarded := NewGuardedSource(src, 3, time.Minute)

	for i := 0; i < 3; i++ {
		_, _, err := guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
		require.Error(t, err)
	}
	assert.Equal(t, int64(3), src.fetches.Load())

	// Breaker is open: the inner source must not be called again.
	_, _, err := guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
	require.Error(t, err)
	assert.Equal(t, ErrUpstreamUnavailable, KindOf(err))
	assert.Equal(t, int64(3), src.fetches.Load(), "open breaker fails fast")
}

func TestGuardedSourceRecoversAfterCooldown(t *testing.T) {
	src := &fakeSource{raw: RawQuote{"price": 10.0}}
	src.setErr(NewQuoteError(ErrUpstreamUnavailable, "down", nil))

	current := time.Unix(1_700_000_000, 0)
	guarded := NewGuardedSource(src, 2, 30*time.Second)
	guarded.now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		_, _, err := guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
		require.Error(t, err)
	}
	_, _, err := guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
	require.Error(t, err)
	assert.Equal(t, int64(2), src.fetches.Load())

	// After the cooldown one probe goes through; success closes the breaker.
	current = current.Add(31 * time.Second)
	src.setErr(nil)
	raw, _, err := guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
	require.NoError(t, err)
	assert.NotNil(t, raw["price"])

	_, _, err = guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, int64(4), src.fetches.Load())
}

func TestGuardedSourceHalfOpenFailureReopens(t *testing.T) {
	src := &fakeSource{}
	src.setErr(NewQuoteError(ErrUpstreamUnavailable, "down", nil))

	current := time.Unix(1_700_000_000, 0)
	guarded := NewGuardedSource(src, 1, 30*time.Second)
	guarded.now = func() time.Time { return current }

	_, _, err := guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
	require.Error(t, err)

	current = current.Add(31 * time.Second)
	_, _, err = guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
	require.Error(t, err, "half-open probe fails")
	fetches := src.fetches.Load()

	_, _, err = guarded.Fetch(context.Background(), "COINBASE:BTCUSD")
	require.Error(t, err)
	assert.Equal(t, fetches, src.fetches.Load(), "failed probe reopens the breaker")
}
