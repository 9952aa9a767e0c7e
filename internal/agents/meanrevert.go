package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/vadiminshakov/verdict/internal/domain"
)

// AgentMeanRevert fades RSI extremes: overbought reads as a down vote,
// oversold as an up vote. Inside the neutral band the agent abstains.
const AgentMeanRevert = "meanrevert"

const (
	meanRevertPeriod     = 14
	meanRevertOverbought = 70.0
	meanRevertOversold   = 30.0
	meanRevertFullScale  = 30.0
	meanRevertMinCandles = 30
)

// MeanRevert is the RSI mean-reversion agent.
type MeanRevert struct {
	history *trendHistory
}

// NewMeanRevert creates a fresh mean-reversion agent.
func NewMeanRevert() *MeanRevert {
	return &MeanRevert{history: newTrendHistory()}
}

// Name implements Agent.
func (a *MeanRevert) Name() string { return AgentMeanRevert }

// Evaluate implements Agent.
func (a *MeanRevert) Evaluate(_ context.Context, mc domain.MarketContext) (domain.Vote, error) {
	closes := mc.Closes()
	if len(closes) < meanRevertMinCandles {
		return domain.NewSkipVote(AgentMeanRevert, fmt.Sprintf("insufficient history: %d candles, need %d", len(closes), meanRevertMinCandles)), nil
	}

	rsi, err := computeRSI(closes, meanRevertPeriod)
	if err != nil {
		return domain.NewSkipVote(AgentMeanRevert, "rsi unavailable: "+err.Error()), nil
	}
	last := rsi[len(rsi)-1]

	var direction domain.Direction
	var confidence float64
	switch {
	case last >= meanRevertOverbought:
		direction = domain.DirectionDown
		confidence = clamp01((last - meanRevertOverbought) / meanRevertFullScale)
	case last <= meanRevertOversold:
		direction = domain.DirectionUp
		confidence = clamp01((meanRevertOversold - last) / meanRevertFullScale)
	default:
		return domain.NewSkipVote(AgentMeanRevert, fmt.Sprintf("rsi %.1f inside neutral band", last)), nil
	}

	if confidence < minDirectionalConfidence {
		// barely past the band edge carries no usable evidence
		return domain.NewSkipVote(AgentMeanRevert, fmt.Sprintf("rsi %.1f at band edge, signal below noise floor", last)), nil
	}

	quality := clamp01(math.Abs(last-50) / 50)

	reasoning := fmt.Sprintf("rsi%d at %.1f", meanRevertPeriod, last)
	if a.history.conflicts(mc.Pair, direction) {
		confidence = dampedConfidence(confidence)
		reasoning += " (damped: conflicts with recent trend)"
	}
	a.history.record(mc.Pair, direction)

	return domain.NewVote(AgentMeanRevert, direction, confidence, quality, reasoning, map[string]string{
		"rsi": fmt.Sprintf("%.2f", last),
	})
}
