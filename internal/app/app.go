package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"cointrade/internal/config"
	"cointrade/internal/keyedlock"
	"cointrade/internal/ledger"
	"cointrade/internal/logger"
	"cointrade/internal/market"
	"cointrade/internal/market/aggregator"
	"cointrade/internal/market/commodity"
	"cointrade/internal/store/filestore"
	"cointrade/internal/store/gormstore"
	"cointrade/internal/store/quotedb"
	apihttp "cointrade/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App owns application-level orchestration: build dependencies from config,
// start the HTTP server and the periodic snapshot refresher, shut everything
// down on context cancel.
type App struct {
	watcher   *config.Watcher
	quotes    *quotedb.Store
	trading   *gormstore.GormStore
	server    *apihttp.Server
	refresher *aggregator.Refresher

	refreshInterval time.Duration
	quoteTTLSeconds atomic.Int64
}

// New builds the application from the config file at path.
func New(path string) (*App, error) {
	watcher, err := config.NewWatcher(path)
	if err != nil {
		return nil, err
	}
	cfg := watcher.Current()
	logger.SetLevel(cfg.App.LogLevel)

	a := &App{watcher: watcher}
	a.quoteTTLSeconds.Store(int64(cfg.Market.QuoteTTLSeconds))
	watcher.Subscribe(func(next *config.Config) {
		a.quoteTTLSeconds.Store(int64(next.Market.QuoteTTLSeconds))
	})

	a.quotes, err = quotedb.NewStore(cfg.Store.QuoteDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening quote store: %w", err)
	}
	a.trading, err = gormstore.NewGormStore(cfg.Store.TradingDBPath)
	if err != nil {
		a.quotes.Close()
		return nil, fmt.Errorf("opening trading store: %w", err)
	}
	fallback, err := filestore.NewStore(cfg.Store.FileCacheDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening file cache: %w", err)
	}

	symbols, err := commodity.LoadSymbolMap(cfg.Market.SymbolMapPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	proxy := commodity.New(cfg.Market.ProxyURL, cfg.Market.ProxyAPIKey,
		commodity.WithSymbolMap(symbols),
		commodity.WithTimeout(cfg.Market.ProxyTimeout()))
	source := market.NewGuardedSource(proxy, cfg.Market.BreakerThreshold, cfg.Market.BreakerCooldown())

	locks := keyedlock.NewTable()
	cache := market.NewCache(source, a.quotes, locks,
		market.WithLockWait(cfg.Market.LockWait()),
		market.WithFallbackStore(fallback))

	executor := ledger.NewExecutor(a.trading, a.trading, a.trading, locks,
		ledger.WithMinOrderInterval(cfg.Trading.MinOrderInterval()),
		ledger.WithTradeLockWait(cfg.Trading.TradeLockWait()))

	if cfg.Market.AggregatorURL != "" {
		agg := aggregator.New(cfg.Market.AggregatorURL, cfg.Market.AggregatorAPIKey, cfg.Market.ProxyTimeout())
		a.refresher = aggregator.NewRefresher(agg, a.quotes)
		a.refreshInterval = cfg.Market.RefreshInterval()
	}

	var refresher apihttp.SnapshotRefresher
	if a.refresher != nil {
		refresher = a.refresher
	}
	a.server, err = apihttp.NewServer(apihttp.ServerConfig{
		Addr:       cfg.App.HTTPAddr,
		QuoteTTLFn: a.quoteTTL,
		Quotes:     cache,
		Prices:     a.quotes,
		Refresher:  refresher,
		Executor:   executor,
		Accounts:   a.trading,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) quoteTTL() time.Duration {
	return time.Duration(a.quoteTTLSeconds.Load()) * time.Second
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("http server listening on %s", a.server.Addr())
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if a.refresher != nil && a.refreshInterval > 0 {
		group.Go(func() error {
			logger.Infof("snapshot refresher running every %s", a.refreshInterval)
			if err := a.refresher.Run(ctx, a.refreshInterval); err != nil && ctx.Err() == nil {
				return fmt.Errorf("snapshot refresher error: %w", err)
			}
			return nil
		})
	}

	err := group.Wait()
	a.Close()
	return err
}

// Close releases the stores. Safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.quotes != nil {
		_ = a.quotes.Close()
	}
	if a.trading != nil {
		_ = a.trading.Close()
	}
}
