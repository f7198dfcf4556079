package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuoteCandidateOrder(t *testing.T) {
	raw := RawQuote{
		"value": "not a number",
		"price": "101.5",
		"close": "999", // must not win, price comes first
	}
	p := NormalizeQuote("COINBASE:BTCUSD", raw, false)
	require.NotNil(t, p.Value)
	assert.Equal(t, 101.5, *p.Value)
}

func TestNormalizeQuoteVendorAliases(t *testing.T) {
	raw := RawQuote{
		"market_last":       68123.5,
		"market_daily_Pchg": "-1.2%",
		"open":              "67,900",
		"high":              "68.5K",
		"name":              "Bitcoin",
	}
	p := NormalizeQuote("COINBASE:BTCUSD", raw, true)
	assert.True(t, p.Ok)
	assert.True(t, p.IsStale)
	assert.Equal(t, "Bitcoin", p.Name)
	require.NotNil(t, p.Value)
	assert.Equal(t, 68123.5, *p.Value)
	require.NotNil(t, p.ChangePercent)
	assert.Equal(t, -1.2, *p.ChangePercent)
	require.NotNil(t, p.Open)
	assert.Equal(t, 67900.0, *p.Open)
	require.NotNil(t, p.High)
	assert.Equal(t, 68500.0, *p.High)
	assert.Nil(t, p.Low)
	assert.Nil(t, p.Previous)
}

func TestNormalizeQuoteEmptyPayload(t *testing.T) {
	p := NormalizeQuote("COINBASE:XAUUSD", RawQuote{}, false)
	assert.True(t, p.Ok)
	assert.Nil(t, p.Value)
	assert.Equal(t, "COINBASE:XAUUSD", p.Name)
}
