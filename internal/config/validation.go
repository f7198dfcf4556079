package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validate(c *Config) error {
	level := strings.ToLower(strings.TrimSpace(c.App.LogLevel))
	if !validLogLevels[level] {
		return fmt.Errorf("app.log_level %q is not one of debug/info/warn/error", c.App.LogLevel)
	}
	c.App.LogLevel = level

	if c.Market.ProxyURL == "" {
		return fmt.Errorf("market.proxy_url is required")
	}
	if c.Market.QuoteTTLSeconds > 3600 {
		return fmt.Errorf("market.quote_ttl_seconds %d exceeds the one hour ceiling", c.Market.QuoteTTLSeconds)
	}
	if c.Market.AggregatorURL == "" && c.Market.RefreshIntervalSeconds > 0 {
		// Snapshot refresh silently disables without an aggregator endpoint,
		// which is a valid single-source deployment.
		c.Market.RefreshIntervalSeconds = 0
	}
	return nil
}
