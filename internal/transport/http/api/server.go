package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cointrade/internal/ledger"
	"cointrade/internal/logger"
	"cointrade/internal/market"
	"cointrade/internal/market/aggregator"
	"cointrade/internal/store/quotedb"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// QuoteCache is the market data surface the server reads quotes from.
type QuoteCache interface {
	Get(ctx context.Context, pair string, ttl time.Duration) (market.QuotePayload, error)
	Price(ctx context.Context, pair string, ttl time.Duration) float64
}

// PriceReader serves the bulk snapshot table.
type PriceReader interface {
	GetByKey(ctx context.Context, key string) (quotedb.PriceRow, bool, error)
	ListRecent(ctx context.Context, limit int) ([]quotedb.PriceRow, error)
}

// SnapshotRefresher triggers one snapshot pull on demand.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (aggregator.Report, error)
}

// TradeExecutor places simulated orders.
type TradeExecutor interface {
	CanPlaceOrder(ctx context.Context, userID int64) (bool, error)
	ExecuteTrade(ctx context.Context, order ledger.Order, marketPrice float64, closeOpposing bool) (ledger.TradeResult, error)
}

// AccountReader exposes per-user trading state for the read endpoints.
type AccountReader interface {
	Balance(ctx context.Context, userID int64) (float64, error)
	History(ctx context.Context, userID int64, limit int) ([]ledger.HistoryEntry, error)
	OpenPositions(ctx context.Context, userID int64) ([]ledger.Position, error)
}

// ServerConfig wires the API server's dependencies. QuoteTTLFn takes
// precedence over QuoteTTL and lets config hot reload change the TTL without
// rebuilding the server.
type ServerConfig struct {
	Addr       string
	QuoteTTL   time.Duration
	QuoteTTLFn func() time.Duration
	Quotes     QuoteCache
	Prices     PriceReader
	Refresher  SnapshotRefresher
	Executor   TradeExecutor
	Accounts   AccountReader
}

// Server exposes the market data and trading API over HTTP.
type Server struct {
	addr     string
	router   *gin.Engine
	quoteTTL func() time.Duration

	quotes    QuoteCache
	prices    PriceReader
	refresher SnapshotRefresher
	executor  TradeExecutor
	accounts  AccountReader
}

// NewServer builds the router. Missing optional dependencies disable their
// endpoints rather than failing construction.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Quotes == nil {
		return nil, errors.New("api server requires a quote cache")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 60 * time.Second
	}
	ttlFn := cfg.QuoteTTLFn
	if ttlFn == nil {
		ttl := cfg.QuoteTTL
		ttlFn = func() time.Duration { return ttl }
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:      cfg.Addr,
		router:    router,
		quoteTTL:  ttlFn,
		quotes:    cfg.Quotes,
		prices:    cfg.Prices,
		refresher: cfg.Refresher,
		executor:  cfg.Executor,
		accounts:  cfg.Accounts,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/market/quote", s.handleQuote)
	if s.prices != nil {
		api.GET("/prices", s.handlePrices)
	}
	if s.refresher != nil {
		api.POST("/prices/refresh", s.handleRefresh)
	}
	if s.executor != nil {
		api.POST("/trades", s.handleTrade)
	}
	if s.accounts != nil {
		api.GET("/balance", s.handleBalance)
		api.GET("/positions", s.handlePositions)
		api.GET("/trades/history", s.handleHistory)
	}
	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// requestLogger tags every request with an id and records method, status and
// duration at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s req=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start), reqID)
	}
}
