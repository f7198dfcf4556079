package market

import (
	"context"
	"time"
)

// Source fetches a raw quote for a normalized pair from an upstream provider.
// Implementations enforce their own hard timeout and return the fetch latency
// so the cache can persist it alongside the payload. Errors should be
// *QuoteError so the cache can classify the failure.
type Source interface {
	Name() string
	Fetch(ctx context.Context, pair string) (RawQuote, time.Duration, error)
}
