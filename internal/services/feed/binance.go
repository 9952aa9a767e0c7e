package feed

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// BinanceSource serves price samples, candle history and order book
// snapshots from Binance. It is the only source carrying klines and depth;
// the other venues contribute price samples for cross-checking.
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource wraps a configured Binance client.
func NewBinanceSource(client *binance.Client) *BinanceSource {
	return &BinanceSource{client: client}
}

// Name implements Source.
func (s *BinanceSource) Name() string { return "binance" }

// Price returns the last traded price for the pair.
func (s *BinanceSource) Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := s.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "binance price for %s", pair)
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Errorf("binance returned no prices for %s", pair)
	}
	return decimal.NewFromString(prices[0].Price)
}

// Klines fetches the candle history for the pair.
func (s *BinanceSource) Klines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.Candle, error) {
	klines, err := s.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "binance klines for %s", pair)
	}

	candles := make([]domain.Candle, 0, len(klines))
	for i, k := range klines {
		open, err := decimal.NewFromString(k.Open)
		if err != nil {
			return nil, errors.Wrapf(err, "parse open at %d", i)
		}
		high, err := decimal.NewFromString(k.High)
		if err != nil {
			return nil, errors.Wrapf(err, "parse high at %d", i)
		}
		low, err := decimal.NewFromString(k.Low)
		if err != nil {
			return nil, errors.Wrapf(err, "parse low at %d", i)
		}
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "parse close at %d", i)
		}
		volume, err := decimal.NewFromString(k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "parse volume at %d", i)
		}

		candles = append(candles, domain.Candle{
			OpenTime:  time.Unix(0, k.OpenTime*int64(time.Millisecond)),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: time.Unix(0, k.CloseTime*int64(time.Millisecond)),
		})
	}
	return candles, nil
}

// OrderBook fetches the top depth levels for the pair.
func (s *BinanceSource) OrderBook(ctx context.Context, pair domain.Pair, depth int) (*domain.OrderBookSnapshot, error) {
	res, err := s.client.NewDepthService().Symbol(pair.Symbol()).Limit(depth).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "binance depth for %s", pair)
	}

	book := &domain.OrderBookSnapshot{
		Bids: make([]domain.BookLevel, 0, len(res.Bids)),
		Asks: make([]domain.BookLevel, 0, len(res.Asks)),
		At:   time.Now().UTC(),
	}
	for _, b := range res.Bids {
		price, err := decimal.NewFromString(b.Price)
		if err != nil {
			return nil, errors.Wrap(err, "parse bid price")
		}
		qty, err := decimal.NewFromString(b.Quantity)
		if err != nil {
			return nil, errors.Wrap(err, "parse bid quantity")
		}
		book.Bids = append(book.Bids, domain.BookLevel{Price: price, Quantity: qty})
	}
	for _, a := range res.Asks {
		price, err := decimal.NewFromString(a.Price)
		if err != nil {
			return nil, errors.Wrap(err, "parse ask price")
		}
		qty, err := decimal.NewFromString(a.Quantity)
		if err != nil {
			return nil, errors.Wrap(err, "parse ask quantity")
		}
		book.Asks = append(book.Asks, domain.BookLevel{Price: price, Quantity: qty})
	}
	return book, nil
}
