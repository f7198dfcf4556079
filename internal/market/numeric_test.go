package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumericStrings(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want float64
	}{
		{"plain integer", "42", 42},
		{"plain float", "3.14", 3.14},
		{"thousands separators", "1,234,567.89", 1234567.89},
		{"percent sign", "-0.42%", -0.42},
		{"unicode minus", "−1.5", -1.5},
		{"en dash", "–2", -2},
		{"nbsp grouping", "1 234.5", 1234.5},
		{"kilo suffix", "12K", 12000},
		{"kilo with separator", "1,234.5K", 1234500},
		{"mega suffix lowercase", "3.1m", 3.1e6},
		{"giga suffix", "2B", 2e9},
		{"leading and trailing space", "  7.5  ", 7.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseNumeric(tc.in)
			require.NotNil(t, got, "expected %q to parse", tc.in)
			assert.InDelta(t, tc.want, *got, 1e-9)
		})
	}
}

func TestParseNumericUnparsable(t *testing.T) {
	for _, in := range []string{"", "   ", "n/a", "12.3.4", "K", "%", "--5"} {
		assert.Nilf(t, ParseNumeric(in), "%q should not parse", in)
	}
	assert.Nil(t, ParseNumeric(nil))
	assert.Nil(t, ParseNumeric([]string{"1"}))
	assert.Nil(t, ParseNumeric(true))
}

func TestParseNumericPassthrough(t *testing.T) {
	got := ParseNumeric(12)
	require.NotNil(t, got)
	assert.Equal(t, 12.0, *got)

	got = ParseNumeric(2.5)
	require.NotNil(t, got)
	assert.Equal(t, 2.5, *got)
}
