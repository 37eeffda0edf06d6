package quote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league/internal/metrics"
)

// Cached wraps an Oracle with a Redis read-through cache. Only successful
// prices are cached; failures always reach the upstream on the next call.
type Cached struct {
	next Oracle
	rdb  redis.Cmdable
	ttl  time.Duration
}

// NewCached creates a cached wrapper around next.
func NewCached(next Oracle, rdb redis.Cmdable, ttl time.Duration) *Cached {
	return &Cached{next: next, rdb: rdb, ttl: ttl}
}

func (c *Cached) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	// Try cache.
	if raw, err := c.rdb.Get(ctx, priceKey(symbol)).Result(); err == nil {
		if p, err := decimal.NewFromString(raw); err == nil && p.IsPositive() {
			metrics.QuoteCacheHits.WithLabelValues("hit").Inc()
			return p, nil
		}
	} else if err != redis.Nil {
		slog.Warn("quote cache read failed", "symbol", symbol, "err", err)
	}
	metrics.QuoteCacheHits.WithLabelValues("miss").Inc()

	// Cache miss: ask upstream.
	p, err := c.next.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.rdb.Set(ctx, priceKey(symbol), p.String(), c.ttl).Err(); err != nil {
		slog.Warn("quote cache write failed", "symbol", symbol, "err", err)
	}
	return p, nil
}

func priceKey(symbol string) string { return fmt.Sprintf("quote:%s", symbol) }
