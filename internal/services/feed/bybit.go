package feed

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// BybitSource serves spot last prices from the Bybit V5 API.
type BybitSource struct {
	client *bybit.Client
}

// NewBybitSource wraps a configured Bybit client.
func NewBybitSource(client *bybit.Client) *BybitSource {
	return &BybitSource{client: client}
}

// Name implements Source.
func (s *BybitSource) Name() string { return "bybit" }

// Price returns the last traded spot price for the pair.
func (s *BybitSource) Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := s.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "bybit tickers for %s", pair)
	}
	if len(result.Result.Spot.List) == 0 {
		return decimal.Zero, errors.Errorf("bybit returned no tickers for %s", pair)
	}
	return decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
}
