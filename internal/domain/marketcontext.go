package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one source's view of the instrument price at context build
// time. Stale marks a sample the feed could not refresh; agents must not
// compute on stale samples.
type PriceSample struct {
	Source string          `json:"source"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
	Stale  bool            `json:"stale,omitempty"`
}

// BookLevel is a single price level of the order book.
type BookLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookSnapshot holds the top of book at context build time, best levels
// first.
type OrderBookSnapshot struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
	At   time.Time   `json:"at"`
}

// BestBid returns the top bid level if present.
func (b *OrderBookSnapshot) BestBid() (BookLevel, bool) {
	if b == nil || len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask level if present.
func (b *OrderBookSnapshot) BestAsk() (BookLevel, bool) {
	if b == nil || len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// Candle is one OHLCV bar of the rolling price history.
type Candle struct {
	OpenTime  time.Time       `json:"open_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	CloseTime time.Time       `json:"close_time"`
}

// MarketContext is the immutable per-event snapshot shared read-only by all
// agents and all strategy runners evaluating one tick.
type MarketContext struct {
	Pair       Pair                `json:"pair"`
	EventID    string              `json:"event_id"`
	EpochStart time.Time           `json:"epoch_start"`
	EpochEnd   time.Time           `json:"epoch_end"`
	Samples    []PriceSample       `json:"samples"`
	Book       *OrderBookSnapshot  `json:"book,omitempty"`
	History    []Candle            `json:"history,omitempty"`
}

// FreshSamples returns the non-stale price samples.
func (m MarketContext) FreshSamples() []PriceSample {
	fresh := make([]PriceSample, 0, len(m.Samples))
	for _, s := range m.Samples {
		if !s.Stale {
			fresh = append(fresh, s)
		}
	}
	return fresh
}

// MidPrice averages the fresh samples. The second return value is false when
// no usable sample exists.
func (m MarketContext) MidPrice() (decimal.Decimal, bool) {
	fresh := m.FreshSamples()
	if len(fresh) == 0 {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, s := range fresh {
		sum = sum.Add(s.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(fresh)))), true
}

// Closes extracts the close series from the rolling history, oldest first.
func (m MarketContext) Closes() []decimal.Decimal {
	closes := make([]decimal.Decimal, len(m.History))
	for i, c := range m.History {
		closes[i] = c.Close
	}
	return closes
}
