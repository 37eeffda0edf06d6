package quote

import (
	"context"
	"fmt"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
)

// lastTrader is the subset of the polygon REST client used here.
type lastTrader interface {
	GetLastTrade(ctx context.Context, params *models.GetLastTradeParams, options ...models.RequestOption) (*models.GetLastTradeResponse, error)
}

// Polygon prices a symbol at its last reported trade.
type Polygon struct {
	client lastTrader
}

// NewPolygon creates an oracle backed by the polygon.io REST API.
func NewPolygon(apiKey string) *Polygon {
	return &Polygon{client: polygon.New(apiKey)}
}

func (p *Polygon) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	res, err := p.client.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: symbol})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if res == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return checkPrice(symbol, decimal.NewFromFloat(res.Results.Price))
}
