package market

import (
	"context"
	"time"

	"cointrade/internal/keyedlock"
	"cointrade/internal/logger"
)

const defaultLockWait = 3 * time.Second

// Cache serves normalized quotes with a freshness TTL and single-flight
// refresh coordination. Reads within the TTL are served straight from the
// store; a stale entry triggers at most one upstream fetch per pair at a time,
// other callers within the lock wait get the previous payload marked stale.
//
// Two backing stores are supported: a primary durable store and an optional
// fallback engaged only when the primary is unreachable. A single Get never
// mixes the two.
type Cache struct {
	source   Source
	primary  CacheStore
	fallback CacheStore
	locks    keyedlock.Lock
	lockWait time.Duration
	now      func() time.Time
}

// CacheOption tweaks Cache construction.
type CacheOption func(*Cache)

// WithLockWait bounds how long a caller waits for the per-pair refresh lock.
func WithLockWait(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.lockWait = d
		}
	}
}

// WithClock replaces the freshness clock (tests).
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFallbackStore installs the store used when the primary is unreachable.
func WithFallbackStore(store CacheStore) CacheOption {
	return func(c *Cache) { c.fallback = store }
}

func NewCache(source Source, primary CacheStore, locks keyedlock.Lock, opts ...CacheOption) *Cache {
	c := &Cache{
		source:   source,
		primary:  primary,
		locks:    locks,
		lockWait: defaultLockWait,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached payload for pair when it is younger than ttl,
// otherwise coordinates a refresh. The returned payload is always usable when
// err is nil; err is non-nil only when no data exists at all for the pair.
func (c *Cache) Get(ctx context.Context, rawPair string, ttl time.Duration) (QuotePayload, error) {
	pair := NormalizePair(rawPair)

	store := c.primary
	if err := store.Ping(ctx); err != nil {
		if c.fallback == nil {
			logger.Errorf("quote cache unavailable pair=%s: %v", pair, err)
			return failurePayload(pair, c.source.Name(), "cache store unreachable"),
				NewQuoteError(ErrCacheUnavailable, "primary store unreachable and no fallback configured", err)
		}
		logger.Warnf("quote cache: primary store unreachable, serving from fallback pair=%s: %v", pair, err)
		store = c.fallback
	}

	cached, found, err := store.Read(ctx, pair)
	if err != nil {
		logger.Warnf("quote cache read failed pair=%s: %v", pair, err)
		found = false
	}
	if found && c.fresh(cached, ttl) {
		logger.Debugf("quote cache hit pair=%s ttl=%s", pair, ttl)
		return cached.Payload, nil
	}

	key := lockKey(pair)
	if !c.locks.TryAcquire(ctx, key, c.lockWait) {
		logger.Warnf("quote refresh lock wait timed out pair=%s", pair)
		if found {
			stale := cached.Payload
			stale.IsStale = true
			return stale, nil
		}
		return failurePayload(pair, c.source.Name(), "could not acquire refresh lock"),
			NewQuoteError(ErrRefreshLockTimeout, "refresh lock wait timed out for "+pair, nil)
	}
	defer c.locks.Release(key)

	// Another waiter may have refreshed while we queued for the lock.
	cached, found, err = store.Read(ctx, pair)
	if err != nil {
		logger.Warnf("quote cache re-read failed pair=%s: %v", pair, err)
		found = false
	}
	if found && c.fresh(cached, ttl) {
		logger.Debugf("quote cache hit after lock pair=%s", pair)
		return cached.Payload, nil
	}

	raw, took, fetchErr := c.source.Fetch(ctx, pair)
	if fetchErr == nil {
		now := c.now()
		payload := NormalizeQuote(pair, raw, false)
		payload.Source = c.source.Name()
		payload.UpdatedAt = now
		rec := CacheRecord{
			Pair:        pair,
			Source:      payload.Source,
			Payload:     payload,
			UpdatedAt:   now,
			FetchMillis: took.Milliseconds(),
		}
		if err := store.Upsert(ctx, rec); err != nil {
			logger.Warnf("quote cache upsert failed pair=%s: %v", pair, err)
		}
		logger.Infof("quote refreshed pair=%s fetch_ms=%d", pair, rec.FetchMillis)
		return payload, nil
	}

	logger.Warnf("quote refresh failed pair=%s: %v", pair, fetchErr)
	if found {
		// Degrade to the previous payload; re-persisting it stamps a new
		// updated_at so a down upstream is not hammered on every read.
		stale := cached.Payload
		stale.Ok = true
		stale.IsStale = true
		stale.LastError = fetchErr.Error()
		rec := CacheRecord{
			Pair:        pair,
			Source:      cached.Source,
			Payload:     stale,
			IsStale:     true,
			UpdatedAt:   c.now(),
			FetchMillis: took.Milliseconds(),
			LastError:   fetchErr.Error(),
		}
		if err := store.Upsert(ctx, rec); err != nil {
			logger.Warnf("quote cache stale upsert failed pair=%s: %v", pair, err)
		}
		return stale, nil
	}

	return failurePayload(pair, c.source.Name(), "unable to refresh quote and no cache available"), fetchErr
}

// Price resolves pair to its latest value, or 0 when no price is available.
// Convenience for the trade path, which treats a zero price as unquotable.
func (c *Cache) Price(ctx context.Context, rawPair string, ttl time.Duration) float64 {
	payload, err := c.Get(ctx, rawPair, ttl)
	if err != nil || payload.Value == nil {
		return 0
	}
	return *payload.Value
}

func (c *Cache) fresh(rec CacheRecord, ttl time.Duration) bool {
	if rec.UpdatedAt.IsZero() {
		return false
	}
	return c.now().Sub(rec.UpdatedAt) < ttl
}

func failurePayload(pair, source, detail string) QuotePayload {
	return QuotePayload{
		Pair:      pair,
		Source:    source,
		IsStale:   true,
		LastError: detail,
	}
}
