// Package executor is the order-placement boundary. The core hands a trade
// decision over and gets a fill back; any failure means "position not
// opened" and must leave account state untouched.
package executor

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
	"go.uber.org/zap"
)

// Fill is the confirmed result of a placed stake.
type Fill struct {
	Price    decimal.Decimal `json:"price"`
	Size     decimal.Decimal `json:"size"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Executor places a stake on one side of an epoch market.
type Executor interface {
	Place(ctx context.Context, decision domain.TradeDecision) (Fill, error)
}

// Paper fills every order instantly at the decision's estimated entry. It
// is the executor for shadow-style live runs where no real capital moves.
type Paper struct {
	logger *zap.Logger
}

// NewPaper creates a paper executor.
func NewPaper(logger *zap.Logger) *Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paper{logger: logger}
}

// Place implements Executor.
func (p *Paper) Place(ctx context.Context, decision domain.TradeDecision) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, errors.Wrap(err, "paper placement cancelled")
	}
	if !decision.ShouldTrade {
		return Fill{}, errors.New("refusing to place a no-trade decision")
	}

	fill := Fill{
		Price:    decision.Price,
		Size:     decision.Size,
		PlacedAt: time.Now().UTC(),
	}
	p.logger.Info("paper fill",
		zap.String("config", decision.Config),
		zap.String("event", decision.EventID),
		zap.String("pair", decision.Pair.String()),
		zap.String("direction", decision.Direction.String()),
		zap.String("size", fill.Size.String()),
		zap.String("price", fill.Price.String()))
	return fill, nil
}
