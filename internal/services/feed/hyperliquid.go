package feed

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// HyperliquidSource serves mid prices from the Hyperliquid public Info API.
type HyperliquidSource struct {
	info *hyperliquid.Info
}

// NewHyperliquidSource wraps a Hyperliquid info client.
func NewHyperliquidSource(info *hyperliquid.Info) *HyperliquidSource {
	return &HyperliquidSource{info: info}
}

// Name implements Source.
func (s *HyperliquidSource) Name() string { return "hyperliquid" }

// Price returns the mid price for the pair's base coin.
func (s *HyperliquidSource) Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if s.info == nil {
		return decimal.Zero, errors.New("hyperliquid info client is nil")
	}

	mids, err := s.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "hyperliquid mids")
	}

	// mids are keyed by base coin, e.g. "BTC"
	mid, ok := mids[pair.From]
	if !ok || mid == "" {
		return decimal.Zero, errors.Errorf("hyperliquid returned no mid for %s", pair.From)
	}
	return decimal.NewFromString(mid)
}
