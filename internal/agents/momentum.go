package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/vadiminshakov/verdict/internal/domain"
)

// AgentMomentum votes with the medium-term trend: EMA20 above EMA50 reads
// as upward momentum.
const AgentMomentum = "momentum"

const (
	momentumMinCandles = 50
	// momentumNoiseFloor is the minimum EMA spread ratio treated as signal.
	momentumNoiseFloor = 0.0005
	momentumConfScale  = 400
	momentumQualityWin = 10
)

// Momentum is the EMA-crossover trend agent.
type Momentum struct {
	history *trendHistory
}

// NewMomentum creates a fresh momentum agent with empty trend history.
func NewMomentum() *Momentum {
	return &Momentum{history: newTrendHistory()}
}

// Name implements Agent.
func (a *Momentum) Name() string { return AgentMomentum }

// Evaluate implements Agent.
func (a *Momentum) Evaluate(_ context.Context, mc domain.MarketContext) (domain.Vote, error) {
	closes := mc.Closes()
	if len(closes) < momentumMinCandles {
		return domain.NewSkipVote(AgentMomentum, fmt.Sprintf("insufficient history: %d candles, need %d", len(closes), momentumMinCandles)), nil
	}

	ema20, err := computeEMA(closes, 20)
	if err != nil {
		return domain.NewSkipVote(AgentMomentum, "ema20 unavailable: "+err.Error()), nil
	}
	ema50, err := computeEMA(closes, 50)
	if err != nil {
		return domain.NewSkipVote(AgentMomentum, "ema50 unavailable: "+err.Error()), nil
	}

	fast := ema20[len(ema20)-1]
	slow := ema50[len(ema50)-1]
	if slow == 0 {
		return domain.NewSkipVote(AgentMomentum, "degenerate ema50 value"), nil
	}

	ratio := (fast - slow) / slow
	if math.Abs(ratio) <= momentumNoiseFloor {
		return domain.NewSkipVote(AgentMomentum, fmt.Sprintf("ema spread %.5f below noise floor", ratio)), nil
	}

	direction := domain.DirectionUp
	if ratio < 0 {
		direction = domain.DirectionDown
	}

	confidence := clamp01(math.Abs(ratio) * momentumConfScale)
	quality := recentAgreement(closes, direction, momentumQualityWin)

	reasoning := fmt.Sprintf("ema20 %.2f vs ema50 %.2f, spread %.4f%%", fast, slow, ratio*100)
	if a.history.conflicts(mc.Pair, direction) {
		confidence = dampedConfidence(confidence)
		reasoning += " (damped: conflicts with recent trend)"
	}
	a.history.record(mc.Pair, direction)

	return domain.NewVote(AgentMomentum, direction, confidence, quality, reasoning, map[string]string{
		"ema20":  fmt.Sprintf("%.4f", fast),
		"ema50":  fmt.Sprintf("%.4f", slow),
		"spread": fmt.Sprintf("%.6f", ratio),
	})
}
