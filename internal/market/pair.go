package market

import (
	"net/url"
	"regexp"
	"strings"
)

const defaultPair = "COINBASE:BTCUSD"

var (
	pairCharsRe = regexp.MustCompile(`[^A-Z0-9:/._\-]`)
	rowKeyRe    = regexp.MustCompile(`[^A-Z0-9]`)
	lockKeyRe   = regexp.MustCompile(`[^A-Z0-9_]`)
	barePairRe  = regexp.MustCompile(`^([A-Z0-9._\-]+)(USDT|USD)$`)
)

// NormalizePair canonicalizes a free-form vendor-ish instrument identifier to
// the EXCHANGE:SYMBOL key used by the cache and the position ledger. The
// upstream only serves Coinbase-style symbols quoted in USD, so BINANCE maps
// to COINBASE and USDT quotes collapse to USD.
func NormalizePair(raw string) string {
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}
	pair := strings.ToUpper(strings.TrimSpace(raw))
	pair = pairCharsRe.ReplaceAllString(pair, "")
	if pair == "" {
		return defaultPair
	}

	if strings.Contains(pair, ":") {
		exchange, symbol, _ := strings.Cut(pair, ":")
		exchange = strings.TrimSpace(exchange)
		symbol = strings.TrimSpace(symbol)
		if exchange == "" || exchange == "BINANCE" {
			exchange = "COINBASE"
		}
		if symbol == "" {
			symbol = "BTCUSD"
		}
		symbol = strings.ReplaceAll(symbol, "/", "")
		if base, ok := strings.CutSuffix(symbol, "USDT"); ok && base != "" {
			symbol = base + "USD"
		}
		return exchange + ":" + symbol
	}

	if strings.Contains(pair, "/") {
		base, quote, _ := strings.Cut(pair, "/")
		if quote == "" || quote == "USDT" {
			quote = "USD"
		}
		return "COINBASE:" + base + quote
	}

	if m := barePairRe.FindStringSubmatch(pair); m != nil {
		return "COINBASE:" + m[1] + "USD"
	}

	return "COINBASE:" + pair + "USD"
}

// NormalizeRowKey reduces an aggregator row name to the unique lookup key
// stored alongside it ("Gold " and "gold" collapse to "GOLD").
func NormalizeRowKey(name string) string {
	return rowKeyRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(name)), "")
}

// lockKey sanitizes a normalized pair into a named-lock identifier.
func lockKey(pair string) string {
	return "market_refresh_" + lockKeyRe.ReplaceAllString(pair, "_")
}
