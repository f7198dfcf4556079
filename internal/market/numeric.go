package market

import (
	"encoding/json"
	"strconv"
	"strings"
)

var numericReplacer = strings.NewReplacer(
	"−", "-", // unicode minus
	"–", "-", // en dash
	"—", "-", // em dash
	" ", "", // nbsp
	" ", "", // narrow nbsp
	" ", "",
)

// ParseNumeric coerces the numeric-ish values vendors emit (ints, floats,
// "1,234.5", "-0.42%", "3.1M", unicode minus variants) to a float. Unparsable
// input yields nil, never an error.
func ParseNumeric(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		return parseNumericString(n.String())
	case string:
		return parseNumericString(n)
	}
	return nil
}

func parseNumericString(s string) *float64 {
	text := strings.TrimSpace(numericReplacer.Replace(s))
	if text == "" {
		return nil
	}

	multiplier := 1.0
	switch text[len(text)-1] {
	case 'K', 'k':
		multiplier = 1e3
		text = text[:len(text)-1]
	case 'M', 'm':
		multiplier = 1e6
		text = text[:len(text)-1]
	case 'B', 'b':
		multiplier = 1e9
		text = text[:len(text)-1]
	}

	text = strings.ReplaceAll(text, "%", "")
	text = strings.ReplaceAll(text, ",", "")
	if text == "" {
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	f *= multiplier
	return &f
}
