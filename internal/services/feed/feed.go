// Package feed assembles the per-event MarketContext from independent price
// sources. Each source failure is signaled as a stale sample rather than an
// error: agents decide what they can compute on.
package feed

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// Source provides one venue's view of the last traded price.
type Source interface {
	Name() string
	Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// KlineProvider fetches the rolling candle history backing trend agents.
type KlineProvider interface {
	Klines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.Candle, error)
}

// BookProvider fetches a top-of-book snapshot.
type BookProvider interface {
	OrderBook(ctx context.Context, pair domain.Pair, depth int) (*domain.OrderBookSnapshot, error)
}
