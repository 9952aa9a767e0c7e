package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// SimulatedSource is a self-contained random-walk venue for paper runs: no
// network, deterministic for a fixed seed. It serves prices, klines and a
// synthetic book around the current price.
type SimulatedSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	price decimal.Decimal
	step  float64
}

// NewSimulatedSource starts the walk at startPrice with the given relative
// step per tick (e.g. 0.002 for 0.2%).
func NewSimulatedSource(startPrice decimal.Decimal, step float64, seed int64) *SimulatedSource {
	return &SimulatedSource{
		rng:   rand.New(rand.NewSource(seed)),
		price: startPrice,
		step:  step,
	}
}

// Name implements Source.
func (s *SimulatedSource) Name() string { return "simulated" }

// Price advances the walk one step and returns the new price.
func (s *SimulatedSource) Price(context.Context, domain.Pair) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance(), nil
}

func (s *SimulatedSource) advance() decimal.Decimal {
	drift := (s.rng.Float64()*2 - 1) * s.step
	s.price = s.price.Mul(decimal.NewFromFloat(1 + drift))
	return s.price
}

// Klines synthesizes a candle history ending at the current price.
func (s *SimulatedSource) Klines(_ context.Context, _ domain.Pair, interval string, limit int) ([]domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	barLength := intervalDuration(interval)
	now := time.Now().UTC()
	candles := make([]domain.Candle, 0, limit)
	open := s.price

	for i := 0; i < limit; i++ {
		closePrice := s.advance()
		high := decimal.Max(open, closePrice)
		low := decimal.Min(open, closePrice)
		openTime := now.Add(-time.Duration(limit-i) * barLength)

		candles = append(candles, domain.Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    decimal.NewFromFloat(1 + s.rng.Float64()*10),
			CloseTime: openTime.Add(barLength),
		})
		open = closePrice
	}
	return candles, nil
}

// OrderBook synthesizes symmetric depth around the current price.
func (s *SimulatedSource) OrderBook(_ context.Context, _ domain.Pair, depth int) (*domain.OrderBookSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book := &domain.OrderBookSnapshot{
		Bids: make([]domain.BookLevel, 0, depth),
		Asks: make([]domain.BookLevel, 0, depth),
		At:   time.Now().UTC(),
	}
	tick := s.price.Mul(decimal.NewFromFloat(0.0001))
	for i := 1; i <= depth; i++ {
		offset := tick.Mul(decimal.NewFromInt(int64(i)))
		qty := decimal.NewFromFloat(0.5 + s.rng.Float64()*5)
		book.Bids = append(book.Bids, domain.BookLevel{Price: s.price.Sub(offset), Quantity: qty})
		book.Asks = append(book.Asks, domain.BookLevel{Price: s.price.Add(offset), Quantity: qty})
	}
	return book, nil
}

func intervalDuration(interval string) time.Duration {
	if d, err := time.ParseDuration(interval); err == nil {
		return d
	}
	return time.Minute
}
