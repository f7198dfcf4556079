package market

import "time"

// RawQuote is the loosely typed field bag an upstream vendor returns for one
// instrument. Field names differ per vendor; NormalizeQuote picks values out
// of it via ordered candidate lists.
type RawQuote map[string]any

// Candidate field names, first present and parseable wins.
var (
	valueFields         = []string{"value", "market_last", "price", "c", "close", "last", "lp"}
	changePercentFields = []string{"changePercent", "market_daily_Pchg"}
)

// QuotePayload is the normalized quote served to callers and persisted in the
// cache stores. Numeric fields are nil until a successful fetch has populated
// them; Value is nil only when no fetch ever succeeded for the pair.
type QuotePayload struct {
	Ok            bool      `json:"ok"`
	Pair          string    `json:"pair"`
	Name          string    `json:"name,omitempty"`
	Source        string    `json:"source,omitempty"`
	Value         *float64  `json:"value"`
	Change        *float64  `json:"change"`
	ChangePercent *float64  `json:"changePercent"`
	Open          *float64  `json:"open"`
	High          *float64  `json:"high"`
	Low           *float64  `json:"low"`
	Previous      *float64  `json:"previous"`
	IsStale       bool      `json:"is_stale"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastError     string    `json:"last_error,omitempty"`
}

// NormalizeQuote maps a raw vendor payload onto a QuotePayload for pair.
func NormalizeQuote(pair string, raw RawQuote, stale bool) QuotePayload {
	p := QuotePayload{
		Ok:            true,
		Pair:          pair,
		Name:          pair,
		Value:         pickNumeric(raw, valueFields...),
		Change:        pickNumeric(raw, "change"),
		ChangePercent: pickNumeric(raw, changePercentFields...),
		Open:          pickNumeric(raw, "open"),
		High:          pickNumeric(raw, "high"),
		Low:           pickNumeric(raw, "low"),
		Previous:      pickNumeric(raw, "previous"),
		IsStale:       stale,
	}
	if name, ok := raw["name"].(string); ok && name != "" {
		p.Name = name
	}
	return p
}

func pickNumeric(raw RawQuote, fields ...string) *float64 {
	for _, field := range fields {
		v, ok := raw[field]
		if !ok {
			continue
		}
		if f := ParseNumeric(v); f != nil {
			return f
		}
	}
	return nil
}
