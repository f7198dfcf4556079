package config

import "time"

// Config is the main configuration carrier.
type Config struct {
	App     AppConfig     `toml:"app"`
	Market  MarketConfig  `toml:"market"`
	Trading TradingConfig `toml:"trading"`
	Store   StoreConfig   `toml:"store"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// MarketConfig drives the quote cache and the upstream clients.
type MarketConfig struct {
	QuoteTTLSeconds        int    `toml:"quote_ttl_seconds"`
	LockWaitSeconds        int    `toml:"lock_wait_seconds"`
	ProxyURL               string `toml:"proxy_url"`
	ProxyAPIKey            string `toml:"proxy_api_key"`
	ProxyTimeoutSeconds    int    `toml:"proxy_timeout_seconds"`
	SymbolMapPath          string `toml:"symbol_map_path"`
	AggregatorURL          string `toml:"aggregator_url"`
	AggregatorAPIKey       string `toml:"aggregator_api_key"`
	RefreshIntervalSeconds int    `toml:"refresh_interval_seconds"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

func (m MarketConfig) BreakerCooldown() time.Duration {
	return time.Duration(m.BreakerCooldownSeconds) * time.Second
}

func (m MarketConfig) QuoteTTL() time.Duration {
	return time.Duration(m.QuoteTTLSeconds) * time.Second
}

func (m MarketConfig) LockWait() time.Duration {
	return time.Duration(m.LockWaitSeconds) * time.Second
}

func (m MarketConfig) ProxyTimeout() time.Duration {
	return time.Duration(m.ProxyTimeoutSeconds) * time.Second
}

func (m MarketConfig) RefreshInterval() time.Duration {
	return time.Duration(m.RefreshIntervalSeconds) * time.Second
}

// TradingConfig controls the simulated trade executor.
type TradingConfig struct {
	MinOrderIntervalSeconds int `toml:"min_order_interval_seconds"`
	TradeLockWaitSeconds    int `toml:"trade_lock_wait_seconds"`
}

func (t TradingConfig) MinOrderInterval() time.Duration {
	return time.Duration(t.MinOrderIntervalSeconds) * time.Second
}

func (t TradingConfig) TradeLockWait() time.Duration {
	return time.Duration(t.TradeLockWaitSeconds) * time.Second
}

// StoreConfig names the persistence locations.
type StoreConfig struct {
	QuoteDBPath   string `toml:"quote_db_path"`
	TradingDBPath string `toml:"trading_db_path"`
	FileCacheDir  string `toml:"file_cache_dir"`
}
