package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const twelveDataURL = "https://api.twelvedata.com/price"

// TwelveData fetches the latest price from the Twelve Data /price endpoint.
type TwelveData struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewTwelveData creates a client with the given request timeout.
func NewTwelveData(apiKey string, timeout time.Duration) *TwelveData {
	return &TwelveData{
		APIKey:  apiKey,
		BaseURL: twelveDataURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

type twelveDataPrice struct {
	Price   string `json:"price"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (c *TwelveData) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{
		"symbol": {symbol},
		"apikey": {c.APIKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if upstreamFault(resp.StatusCode) {
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var data twelveDataPrice
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	// Errors arrive in-band with HTTP 200; only 400 and 404 concern the symbol.
	if upstreamFault(data.Code) {
		return decimal.Zero, fmt.Errorf("%w: code %d: %s", ErrUpstreamUnavailable, data.Code, data.Message)
	}
	if data.Price == "" {
		msg := data.Message
		if msg == "" {
			msg = "no price in response"
		}
		return decimal.Zero, fmt.Errorf("%w: %s: %s", ErrSymbolNotFound, symbol, msg)
	}
	p, err := decimal.NewFromString(data.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: bad price %q", ErrSymbolNotFound, symbol, data.Price)
	}
	return checkPrice(symbol, p)
}

// upstreamFault reports whether code means the provider, not the symbol, failed:
// bad or missing API key, exhausted credits, or a server error.
func upstreamFault(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
