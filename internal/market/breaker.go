package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"cointrade/internal/logger"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "CLOSED"
	case breakerOpen:
		return "OPEN"
	case breakerHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// GuardedSource wraps a Source with a failure-threshold breaker. Once the
// upstream has failed threshold times in a row the breaker opens and fetches
// fail fast for the cooldown period, so an expired cache full of pairs does
// not hammer a dead vendor. The cache then serves stale data as usual.
type GuardedSource struct {
	inner Source

	mu          sync.Mutex
	state       breakerState
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
	now         func() time.Time
}

func NewGuardedSource(inner Source, threshold int, cooldown time.Duration) *GuardedSource {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &GuardedSource{
		inner:     inner,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (g *GuardedSource) Name() string { return g.inner.Name() }

func (g *GuardedSource) Fetch(ctx context.Context, pair string) (RawQuote, time.Duration, error) {
	if !g.allow() {
		return nil, 0, NewQuoteError(ErrUpstreamUnavailable, "upstream circuit open", nil)
	}
	raw, latency, err := g.inner.Fetch(ctx, pair)
	if err != nil {
		// Context cancellation is the caller's doing, not upstream health.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			g.recordFailure()
		}
		return raw, latency, err
	}
	g.recordSuccess()
	return raw, latency, nil
}

func (g *GuardedSource) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case breakerOpen:
		if g.now().Sub(g.lastFailure) > g.cooldown {
			g.transition(breakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (g *GuardedSource) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == breakerHalfOpen {
		g.transition(breakerClosed)
	}
	g.failures = 0
}

func (g *GuardedSource) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	g.lastFailure = g.now()
	switch g.state {
	case breakerClosed:
		if g.failures >= g.threshold {
			g.transition(breakerOpen)
		}
	case breakerHalfOpen:
		g.transition(breakerOpen)
	}
}

func (g *GuardedSource) transition(to breakerState) {
	from := g.state
	g.state = to
	logger.Warnf("source %s breaker %s -> %s (failures=%d/%d cooldown=%s)",
		g.inner.Name(), from, to, g.failures, g.threshold, g.cooldown)
}

var _ Source = (*GuardedSource)(nil)
