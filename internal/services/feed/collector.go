package feed

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/verdict/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCallTimeout  = 5 * time.Second
	defaultHistoryLimit = 60
	defaultBookDepth    = 20
	defaultInterval     = "1m"
)

// Collector builds one immutable MarketContext per tick. Sources are queried
// in parallel, each under its own timeout; a source that fails or times out
// contributes a stale sample so agents can tell "no data" from "price is X".
type Collector struct {
	sources      []Source
	klines       KlineProvider
	book         BookProvider
	callTimeout  time.Duration
	interval     string
	historyLimit int
	bookDepth    int
	logger       *zap.Logger
}

// CollectorOption configures optional collector behavior.
type CollectorOption func(*Collector)

// WithCallTimeout bounds every external call.
func WithCallTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// WithHistory sets the kline interval and window length.
func WithHistory(interval string, limit int) CollectorOption {
	return func(c *Collector) {
		if interval != "" {
			c.interval = interval
		}
		if limit > 0 {
			c.historyLimit = limit
		}
	}
}

// NewCollector wires the price sources with the kline and book providers.
// klines and book may be nil; the context is then built without history or
// depth and the agents needing them will skip.
func NewCollector(sources []Source, klines KlineProvider, book BookProvider, logger *zap.Logger, opts ...CollectorOption) (*Collector, error) {
	if len(sources) == 0 {
		return nil, errors.New("at least one price source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		sources:      sources,
		klines:       klines,
		book:         book,
		callTimeout:  defaultCallTimeout,
		interval:     defaultInterval,
		historyLimit: defaultHistoryLimit,
		bookDepth:    defaultBookDepth,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BuildContext snapshots the market for one event. It never fails outright:
// unavailable inputs are marked stale or left empty and the agents decide
// what they can still compute.
func (c *Collector) BuildContext(ctx context.Context, pair domain.Pair, eventID string, epochStart, epochEnd time.Time) domain.MarketContext {
	mc := domain.MarketContext{
		Pair:       pair,
		EventID:    eventID,
		EpochStart: epochStart,
		EpochEnd:   epochEnd,
		Samples:    make([]domain.PriceSample, len(c.sources)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, c.callTimeout)
			defer cancel()

			price, err := src.Price(callCtx, pair)
			at := time.Now().UTC()
			if err != nil {
				c.logger.Warn("price source unavailable, marking stale",
					zap.String("source", src.Name()), zap.Error(err))
				mc.Samples[i] = domain.PriceSample{Source: src.Name(), At: at, Stale: true}
				return nil
			}
			mc.Samples[i] = domain.PriceSample{Source: src.Name(), Price: price, At: at}
			return nil
		})
	}

	if c.klines != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, c.callTimeout)
			defer cancel()

			history, err := c.klines.Klines(callCtx, pair, c.interval, c.historyLimit)
			if err != nil {
				c.logger.Warn("kline history unavailable", zap.Error(err))
				return nil
			}
			mc.History = history
			return nil
		})
	}

	if c.book != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, c.callTimeout)
			defer cancel()

			book, err := c.book.OrderBook(callCtx, pair, c.bookDepth)
			if err != nil {
				c.logger.Warn("order book unavailable", zap.Error(err))
				return nil
			}
			mc.Book = book
			return nil
		})
	}

	// every branch degrades in place instead of failing the tick
	_ = g.Wait()

	return mc
}
