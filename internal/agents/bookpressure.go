package agents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// AgentBookPressure votes on order-book imbalance: dominant bid depth reads
// as buying pressure.
const AgentBookPressure = "bookpressure"

const (
	bookPressureLevels    = 5
	bookPressureUpBound   = 0.60
	bookPressureDownBound = 0.40
	bookPressureConfScale = 4
)

// BookPressure is the order-book imbalance agent.
type BookPressure struct {
	history *trendHistory
}

// NewBookPressure creates a fresh book-pressure agent.
func NewBookPressure() *BookPressure {
	return &BookPressure{history: newTrendHistory()}
}

// Name implements Agent.
func (a *BookPressure) Name() string { return AgentBookPressure }

// Evaluate implements Agent.
func (a *BookPressure) Evaluate(_ context.Context, mc domain.MarketContext) (domain.Vote, error) {
	book := mc.Book
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return domain.NewSkipVote(AgentBookPressure, "order book snapshot unavailable"), nil
	}

	bidDepth := sumDepth(book.Bids, bookPressureLevels)
	askDepth := sumDepth(book.Asks, bookPressureLevels)
	total := bidDepth.Add(askDepth)
	if total.LessThanOrEqual(decimal.Zero) {
		return domain.NewSkipVote(AgentBookPressure, "order book carries no depth"), nil
	}

	imbalance, _ := bidDepth.Div(total).Float64()

	var direction domain.Direction
	switch {
	case imbalance >= bookPressureUpBound:
		direction = domain.DirectionUp
	case imbalance <= bookPressureDownBound:
		direction = domain.DirectionDown
	default:
		return domain.NewSkipVote(AgentBookPressure, fmt.Sprintf("book imbalance %.2f inside neutral band", imbalance)), nil
	}

	confidence := clamp01(abs(imbalance-0.5) * bookPressureConfScale)
	levels := len(book.Bids)
	if len(book.Asks) < levels {
		levels = len(book.Asks)
	}
	quality := clamp01(float64(levels) / bookPressureLevels)

	reasoning := fmt.Sprintf("bid share %.2f of top-of-book depth", imbalance)
	if a.history.conflicts(mc.Pair, direction) {
		confidence = dampedConfidence(confidence)
		reasoning += " (damped: conflicts with recent trend)"
	}
	a.history.record(mc.Pair, direction)

	return domain.NewVote(AgentBookPressure, direction, confidence, quality, reasoning, map[string]string{
		"imbalance": fmt.Sprintf("%.4f", imbalance),
		"bid_depth": bidDepth.String(),
		"ask_depth": askDepth.String(),
	})
}

func sumDepth(levels []domain.BookLevel, limit int) decimal.Decimal {
	if len(levels) < limit {
		limit = len(levels)
	}
	sum := decimal.Zero
	for _, l := range levels[:limit] {
		sum = sum.Add(l.Quantity)
	}
	return sum
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
