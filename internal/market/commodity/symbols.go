package commodity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SymbolMap translates normalized pairs to the vendor's own symbols. The
// mapping is keyed by the bare symbol part, so COINBASE:GOLDUSD and GOLDUSD
// both resolve to the same vendor entry.
type SymbolMap struct {
	entries map[string]string
}

// DefaultSymbols covers the commodity futures the proxy is normally asked
// for. A YAML file can extend or replace them.
var DefaultSymbols = map[string]string{
	"GOLDUSD":   "GC=F",
	"SILVERUSD": "SI=F",
	"OILUSD":    "CL=F",
	"GASUSD":    "NG=F",
	"COPPERUSD": "HG=F",
}

func NewSymbolMap(entries map[string]string) *SymbolMap {
	m := &SymbolMap{entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		k = strings.ToUpper(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		m.entries[k] = v
	}
	return m
}

// LoadSymbolMap reads a YAML mapping of pair to vendor symbol. Entries merge
// over the defaults, file values winning.
func LoadSymbolMap(path string) (*SymbolMap, error) {
	merged := make(map[string]string, len(DefaultSymbols))
	for k, v := range DefaultSymbols {
		merged[k] = v
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading symbol map: %w", err)
		}
		var fromFile map[string]string
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parsing symbol map %s: %w", path, err)
		}
		for k, v := range fromFile {
			merged[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
	return NewSymbolMap(merged), nil
}

// Resolve returns the vendor symbol for pair, or the pair itself when no
// mapping exists. The exchange prefix is ignored for lookup.
func (m *SymbolMap) Resolve(pair string) string {
	if m == nil || len(m.entries) == 0 {
		return pair
	}
	key := strings.ToUpper(strings.TrimSpace(pair))
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		key = key[idx+1:]
	}
	if vendor, ok := m.entries[key]; ok {
		return vendor
	}
	return pair
}
