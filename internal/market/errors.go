package market

import (
	"errors"
	"fmt"
)

// ErrorKind classifies quote-path failures so callers can map them to
// transport responses without string matching.
type ErrorKind string

const (
	ErrUpstreamUnavailable ErrorKind = "upstream_unavailable"
	ErrInvalidResponse     ErrorKind = "invalid_response"
	ErrRefreshLockTimeout  ErrorKind = "refresh_lock_timeout"
	ErrCacheUnavailable    ErrorKind = "cache_unavailable"
)

// QuoteError carries a failure kind plus human-readable detail. Every quote
// code path returns one of these rather than panicking or passing raw
// transport errors upward.
type QuoteError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *QuoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *QuoteError) Unwrap() error { return e.Err }

func NewQuoteError(kind ErrorKind, detail string, err error) *QuoteError {
	return &QuoteError{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err is not a QuoteError.
func KindOf(err error) ErrorKind {
	var qe *QuoteError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}
