package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// AgentVelocity votes on short-window price velocity: the fresh consolidated
// price against the close from a few candles back.
const AgentVelocity = "velocity"

const (
	velocityLookback   = 3
	velocityNoiseFloor = 0.001
	velocityConfScale  = 250
)

// Velocity is the short-term price velocity agent.
type Velocity struct {
	history *trendHistory
}

// NewVelocity creates a fresh velocity agent.
func NewVelocity() *Velocity {
	return &Velocity{history: newTrendHistory()}
}

// Name implements Agent.
func (a *Velocity) Name() string { return AgentVelocity }

// Evaluate implements Agent.
func (a *Velocity) Evaluate(_ context.Context, mc domain.MarketContext) (domain.Vote, error) {
	mid, ok := mc.MidPrice()
	if !ok {
		return domain.NewSkipVote(AgentVelocity, "no fresh price samples"), nil
	}
	closes := mc.Closes()
	if len(closes) < velocityLookback+1 {
		return domain.NewSkipVote(AgentVelocity, fmt.Sprintf("insufficient history: %d candles, need %d", len(closes), velocityLookback+1)), nil
	}

	reference := closes[len(closes)-1-velocityLookback]
	if reference.LessThanOrEqual(decimal.Zero) {
		return domain.NewSkipVote(AgentVelocity, "degenerate reference price"), nil
	}

	changeDec := mid.Sub(reference).Div(reference)
	change, _ := changeDec.Float64()
	if math.Abs(change) <= velocityNoiseFloor {
		return domain.NewSkipVote(AgentVelocity, fmt.Sprintf("velocity %.5f below noise floor", change)), nil
	}

	direction := domain.DirectionUp
	if change < 0 {
		direction = domain.DirectionDown
	}

	confidence := clamp01(math.Abs(change) * velocityConfScale)
	// quality: share of sources that delivered a fresh sample
	quality := 0.0
	if len(mc.Samples) > 0 {
		quality = clamp01(float64(len(mc.FreshSamples())) / float64(len(mc.Samples)))
	}

	reasoning := fmt.Sprintf("price moved %.3f%% over last %d candles", change*100, velocityLookback)
	if a.history.conflicts(mc.Pair, direction) {
		confidence = dampedConfidence(confidence)
		reasoning += " (damped: conflicts with recent trend)"
	}
	a.history.record(mc.Pair, direction)

	return domain.NewVote(AgentVelocity, direction, confidence, quality, reasoning, map[string]string{
		"velocity": fmt.Sprintf("%.6f", change),
		"mid":      mid.String(),
	})
}
