package commodity

import (
	"context"
	"fmt"
	"time"

	"cointrade/internal/market"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const defaultTimeout = 10 * time.Second

// Client fetches single-pair quotes from the commodity proxy. It implements
// market.Source, so the cache decides when to call it; the client itself is
// stateless apart from the HTTP connection pool.
type Client struct {
	http    *resty.Client
	apiKey  string
	symbols *SymbolMap
}

type Option func(*Client)

// WithSymbolMap installs a vendor symbol translation applied before the
// upstream request (for example GOLDUSD to GC=F).
func WithSymbolMap(m *SymbolMap) Option {
	return func(c *Client) { c.symbols = m }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(3 * time.Second),
		apiKey: apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "commodity_proxy" }

// Fetch requests a quote for the normalized pair and returns the raw field
// map plus upstream latency. Failures carry a typed kind so the cache can
// persist them with the stale entry.
func (c *Client) Fetch(ctx context.Context, pair string) (market.RawQuote, time.Duration, error) {
	query := pair
	if c.symbols != nil {
		query = c.symbols.Resolve(pair)
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-API-Key", c.apiKey).
		SetQueryParam("currencyPair", query).
		Get("/tv/quote")
	latency := time.Since(start)
	if err != nil {
		return nil, latency, market.NewQuoteError(market.ErrUpstreamUnavailable,
			fmt.Sprintf("quote request for %s failed", query), err)
	}
	if !resp.IsSuccess() {
		return nil, latency, market.NewQuoteError(market.ErrUpstreamUnavailable,
			fmt.Sprintf("quote request for %s returned status %d", query, resp.StatusCode()), nil)
	}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, latency, market.NewQuoteError(market.ErrInvalidResponse,
			fmt.Sprintf("quote response for %s is not valid JSON", query), nil)
	}
	doc := gjson.ParseBytes(body)
	if ok := doc.Get("ok"); ok.Exists() && !ok.Bool() {
		detail := doc.Get("error").String()
		if detail == "" {
			detail = "upstream reported failure"
		}
		return nil, latency, market.NewQuoteError(market.ErrInvalidResponse, detail, nil)
	}

	// Some deployments wrap the quote in a data object, others return the
	// fields at the top level.
	fields := doc
	if data := doc.Get("data"); data.Exists() && data.IsObject() {
		fields = data
	}
	raw := make(market.RawQuote)
	fields.ForEach(func(key, value gjson.Result) bool {
		raw[key.String()] = value.Value()
		return true
	})
	if len(raw) == 0 {
		return nil, latency, market.NewQuoteError(market.ErrInvalidResponse,
			fmt.Sprintf("quote response for %s carried no fields", query), nil)
	}
	return raw, latency, nil
}

var _ market.Source = (*Client)(nil)
