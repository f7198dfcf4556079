package config

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9980"
	}

	if c.Market.QuoteTTLSeconds <= 0 {
		c.Market.QuoteTTLSeconds = 60
	}
	if c.Market.LockWaitSeconds <= 0 {
		c.Market.LockWaitSeconds = 3
	}
	if c.Market.ProxyTimeoutSeconds <= 0 {
		c.Market.ProxyTimeoutSeconds = 10
	}
	if c.Market.RefreshIntervalSeconds <= 0 {
		c.Market.RefreshIntervalSeconds = 300
	}
	if c.Market.BreakerThreshold <= 0 {
		c.Market.BreakerThreshold = 5
	}
	if c.Market.BreakerCooldownSeconds <= 0 {
		c.Market.BreakerCooldownSeconds = 30
	}

	// A negative interval disables the order rate limit; zero means unset.
	if c.Trading.MinOrderIntervalSeconds < 0 {
		c.Trading.MinOrderIntervalSeconds = 0
	} else if c.Trading.MinOrderIntervalSeconds == 0 {
		c.Trading.MinOrderIntervalSeconds = 60
	}
	if c.Trading.TradeLockWaitSeconds <= 0 {
		c.Trading.TradeLockWaitSeconds = 5
	}

	if c.Store.QuoteDBPath == "" {
		c.Store.QuoteDBPath = "data/quotes.db"
	}
	if c.Store.TradingDBPath == "" {
		c.Store.TradingDBPath = "data/trading.db"
	}
	if c.Store.FileCacheDir == "" {
		c.Store.FileCacheDir = "data/quote_cache"
	}
}
