package aggregator

import (
	"context"
	"fmt"
	"time"

	"cointrade/internal/market"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const defaultTimeout = 15 * time.Second

// Row is one instrument from a bulk snapshot. Numeric fields are nil when
// the vendor sent nothing parseable for them.
type Row struct {
	Name          string
	Value         *float64
	Change        *float64
	ChangePercent *float64
	Open          *float64
	High          *float64
	Low           *float64
	Previous      *float64
	Raw           string
}

// Client pulls whole-board snapshots from the price aggregator. One request
// returns every instrument the vendor tracks.
type Client struct {
	http   *resty.Client
	apiKey string
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
		apiKey: apiKey,
	}
}

// FetchRows requests the full snapshot and parses the vendor envelope
// {"ok":bool,"rows":[...]}. Vendor numbers arrive as display strings
// ("1,234.5", "2.1%", "1.2K") and go through the shared numeric parser.
func (c *Client) FetchRows(ctx context.Context) ([]Row, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-API-Key", c.apiKey).
		Get("/rows")
	if err != nil {
		return nil, market.NewQuoteError(market.ErrUpstreamUnavailable, "snapshot request failed", err)
	}
	if !resp.IsSuccess() {
		return nil, market.NewQuoteError(market.ErrUpstreamUnavailable,
			fmt.Sprintf("snapshot request returned status %d", resp.StatusCode()), nil)
	}
	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, market.NewQuoteError(market.ErrInvalidResponse, "snapshot response is not valid JSON", nil)
	}
	doc := gjson.ParseBytes(body)
	if ok := doc.Get("ok"); ok.Exists() && !ok.Bool() {
		detail := doc.Get("error").String()
		if detail == "" {
			detail = "aggregator reported failure"
		}
		return nil, market.NewQuoteError(market.ErrInvalidResponse, detail, nil)
	}
	rowsJSON := doc.Get("rows")
	if !rowsJSON.IsArray() {
		return nil, market.NewQuoteError(market.ErrInvalidResponse, "snapshot response carried no rows array", nil)
	}

	var rows []Row
	rowsJSON.ForEach(func(_, item gjson.Result) bool {
		rows = append(rows, Row{
			Name:          item.Get("Name").String(),
			Value:         parseField(item, "Value"),
			Change:        parseField(item, "Change"),
			ChangePercent: parseField(item, "Chg%"),
			Open:          parseField(item, "Open"),
			High:          parseField(item, "High"),
			Low:           parseField(item, "Low"),
			Previous:      parseField(item, "Prev"),
			Raw:           item.Raw,
		})
		return true
	})
	return rows, nil
}

func parseField(item gjson.Result, field string) *float64 {
	v := item.Get(field)
	if !v.Exists() {
		return nil
	}
	return market.ParseNumeric(v.Value())
}
