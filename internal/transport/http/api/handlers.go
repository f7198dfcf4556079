package apihttp

import (
	"errors"
	"net/http"
	"strconv"

	"cointrade/internal/ledger"
	"cointrade/internal/logger"
	"cointrade/internal/market"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleQuote(c *gin.Context) {
	payload, err := s.quotes.Get(c.Request.Context(), c.Query("pair"), s.quoteTTL())
	if err != nil {
		c.JSON(quoteStatus(err), gin.H{
			"ok":      false,
			"error":   string(market.KindOf(err)),
			"payload": payload,
		})
		return
	}
	c.JSON(http.StatusOK, payload)
}

func quoteStatus(err error) int {
	switch market.KindOf(err) {
	case market.ErrUpstreamUnavailable, market.ErrInvalidResponse:
		return http.StatusBadGateway
	case market.ErrRefreshLockTimeout, market.ErrCacheUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handlePrices(c *gin.Context) {
	ctx := c.Request.Context()
	if pair := c.Query("pair"); pair != "" {
		key := market.NormalizeRowKey(pair)
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_pair"})
			return
		}
		row, found, err := s.prices.GetByKey(ctx, key)
		if err != nil {
			logger.Errorf("price lookup %q failed: %v", key, err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "pair_not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "row": row})
		return
	}

	limit := 300
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if n, err := strconv.Atoi(rawLimit); err == nil {
			limit = n
		}
	}
	rows, err := s.prices.ListRecent(ctx, limit)
	if err != nil {
		logger.Errorf("price listing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(rows), "rows": rows})
}

func (s *Server) handleRefresh(c *gin.Context) {
	report, err := s.refresher.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"ok":     false,
			"error":  string(market.KindOf(err)),
			"report": report,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":            true,
		"run_id":        report.RunID,
		"rows_received": report.RowsReceived,
		"rows_upserted": report.RowsUpserted,
		"took_ms":       report.TookMS,
	})
}

type tradeRequest struct {
	UserID        int64   `json:"user_id" binding:"required"`
	Pair          string  `json:"pair" binding:"required"`
	Side          string  `json:"side" binding:"required"`
	Quantity      float64 `json:"quantity" binding:"required"`
	CloseOpposing *bool   `json:"close_opposing"`
}

func (s *Server) handleTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_request", "detail": err.Error()})
		return
	}
	side, err := ledger.ParseSide(req.Side)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_side"})
		return
	}
	if req.Quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_quantity"})
		return
	}

	ctx := c.Request.Context()
	ok, err := s.executor.CanPlaceOrder(ctx, req.UserID)
	if err != nil {
		logger.Errorf("rate limit check for user %d failed: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
		return
	}
	if !ok {
		c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "rate_limited"})
		return
	}

	price := s.quotes.Price(ctx, req.Pair, s.quoteTTL())
	if price <= 0 {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "price_unavailable"})
		return
	}

	closeOpposing := true
	if req.CloseOpposing != nil {
		closeOpposing = *req.CloseOpposing
	}
	res, err := s.executor.ExecuteTrade(ctx, ledger.Order{
		UserID:   req.UserID,
		Pair:     req.Pair,
		Side:     side,
		Quantity: req.Quantity,
	}, price, closeOpposing)
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "insufficient_funds"})
		return
	case errors.Is(err, ledger.ErrTradeLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "trade_lock_timeout"})
		return
	case err != nil:
		logger.Errorf("trade for user %d failed: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_user_id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleBalance(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	balance, err := s.accounts.Balance(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("balance lookup for user %d failed: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user_id": userID, "balance": balance})
}

func (s *Server) handlePositions(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	positions, err := s.accounts.OpenPositions(c.Request.Context(), userID)
	if err != nil {
		logger.Errorf("position listing for user %d failed: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user_id": userID, "positions": positions})
}

func (s *Server) handleHistory(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if n, err := strconv.Atoi(rawLimit); err == nil {
			limit = n
		}
	}
	entries, err := s.accounts.History(c.Request.Context(), userID, limit)
	if err != nil {
		logger.Errorf("history listing for user %d failed: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user_id": userID, "history": entries})
}
