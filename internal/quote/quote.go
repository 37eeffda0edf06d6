// Package quote provides live equity prices. The ledger treats every failure
// as a hard stop: no trade is applied without a price.
package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockleague/league/internal/apperr"
	"github.com/stockleague/league/internal/metrics"
	"github.com/stockleague/league/internal/ticker"
)

var (
	ErrSymbolNotFound      = apperr.New(apperr.SymbolNotFound, "price not found")
	ErrUpstreamUnavailable = apperr.New(apperr.Upstream, "price provider unavailable")
)

// Oracle returns the current positive price of a symbol.
type Oracle interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// checkPrice rejects the non-positive values some providers return for
// unknown symbols.
func checkPrice(symbol string, p decimal.Decimal) (decimal.Decimal, error) {
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s (got %s)", ErrSymbolNotFound, symbol, p)
	}
	return p, nil
}

// Static serves prices from a fixed table. Used for development and tests.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic creates a Static oracle from symbol → price.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for sym, p := range prices {
		s.prices[strings.ToUpper(sym)] = p
	}
	return s
}

// ParseStatic builds a Static oracle from "AAPL=190.5,MSFT=410".
func ParseStatic(spec string) (*Static, error) {
	prices := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		sym, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("quote: invalid static price %q (expected SYMBOL=PRICE)", pair)
		}
		norm, err := ticker.Normalize(sym)
		if err != nil {
			return nil, err
		}
		p, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !p.IsPositive() {
			return nil, fmt.Errorf("quote: invalid static price for %s: %q", norm, raw)
		}
		prices[norm] = p
	}
	return NewStatic(prices), nil
}

// Set updates or adds a price.
func (s *Static) Set(symbol string, p decimal.Decimal) {
	s.mu.Lock()
	s.prices[strings.ToUpper(symbol)] = p
	s.mu.Unlock()
}

func (s *Static) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	p, ok := s.prices[strings.ToUpper(symbol)]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return checkPrice(symbol, p)
}

// Instrumented records latency and outcome of every call to the wrapped oracle.
type Instrumented struct {
	next     Oracle
	provider string
}

// NewInstrumented wraps next, labelling metrics with provider.
func NewInstrumented(next Oracle, provider string) *Instrumented {
	return &Instrumented{next: next, provider: provider}
}

func (o *Instrumented) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	start := time.Now()
	p, err := o.next.Price(ctx, symbol)
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	metrics.QuoteLatency.WithLabelValues(o.provider, outcome).Observe(time.Since(start).Seconds())
	return p, err
}
