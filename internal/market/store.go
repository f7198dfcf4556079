package market

import (
	"context"
	"time"
)

// CacheRecord is one persisted cache entry. The stores keep the whole
// normalized payload plus refresh metadata; numeric columns are denormalized
// from the payload by the store itself.
type CacheRecord struct {
	Pair        string       `json:"pair"`
	Source      string       `json:"source"`
	Payload     QuotePayload `json:"payload"`
	IsStale     bool         `json:"is_stale"`
	UpdatedAt   time.Time    `json:"updated_at"`
	FetchMillis int64        `json:"last_fetch_ms"`
	LastError   string       `json:"last_error,omitempty"`
}

// CacheStore is the key-value-with-TTL-semantics persistence the cache writes
// through. Read reports (record, found, error); a missing pair is not an
// error. Ping lets the cache detect an unreachable store up front and switch
// to the fallback for the whole call.
type CacheStore interface {
	Ping(ctx context.Context) error
	Read(ctx context.Context, pair string) (CacheRecord, bool, error)
	Upsert(ctx context.Context, rec CacheRecord) error
}
