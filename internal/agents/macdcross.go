package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/vadiminshakov/verdict/internal/domain"
)

// AgentMACDCross votes on the MACD line relative to its signal line.
const AgentMACDCross = "macdcross"

const (
	macdMinCandles = 40
	// macdNoiseFloor is the minimum MACD/signal divergence, normalized by
	// price, that counts as signal.
	macdNoiseFloor = 0.0002
	macdConfScale  = 1500
	macdQualityWin = 3
)

// MACDCross is the MACD divergence agent.
type MACDCross struct {
	history *trendHistory
}

// NewMACDCross creates a fresh MACD agent.
func NewMACDCross() *MACDCross {
	return &MACDCross{history: newTrendHistory()}
}

// Name implements Agent.
func (a *MACDCross) Name() string { return AgentMACDCross }

// Evaluate implements Agent.
func (a *MACDCross) Evaluate(_ context.Context, mc domain.MarketContext) (domain.Vote, error) {
	closes := mc.Closes()
	if len(closes) < macdMinCandles {
		return domain.NewSkipVote(AgentMACDCross, fmt.Sprintf("insufficient history: %d candles, need %d", len(closes), macdMinCandles)), nil
	}

	macdLine, signalLine, err := computeMACD(closes)
	if err != nil {
		return domain.NewSkipVote(AgentMACDCross, "macd unavailable: "+err.Error()), nil
	}
	n := len(macdLine)
	if len(signalLine) < n {
		n = len(signalLine)
	}
	if n == 0 {
		return domain.NewSkipVote(AgentMACDCross, "macd produced no values"), nil
	}

	lastClose, _ := closes[len(closes)-1].Float64()
	if lastClose <= 0 {
		return domain.NewSkipVote(AgentMACDCross, "degenerate close price"), nil
	}

	macdOff := len(macdLine) - n
	sigOff := len(signalLine) - n
	divergence := (macdLine[macdOff+n-1] - signalLine[sigOff+n-1]) / lastClose
	if math.Abs(divergence) <= macdNoiseFloor {
		return domain.NewSkipVote(AgentMACDCross, fmt.Sprintf("macd divergence %.6f below noise floor", divergence)), nil
	}

	direction := domain.DirectionUp
	if divergence < 0 {
		direction = domain.DirectionDown
	}

	confidence := clamp01(math.Abs(divergence) * macdConfScale)

	// quality: has the divergence kept its sign over the last few bars
	consistent := 0
	for i := 1; i <= macdQualityWin && n-i >= 0; i++ {
		d := macdLine[macdOff+n-i] - signalLine[sigOff+n-i]
		if (divergence > 0 && d > 0) || (divergence < 0 && d < 0) {
			consistent++
		}
	}
	quality := float64(consistent) / float64(macdQualityWin)

	reasoning := fmt.Sprintf("macd/signal divergence %.5f%% of price", divergence*100)
	if a.history.conflicts(mc.Pair, direction) {
		confidence = dampedConfidence(confidence)
		reasoning += " (damped: conflicts with recent trend)"
	}
	a.history.record(mc.Pair, direction)

	return domain.NewVote(AgentMACDCross, direction, confidence, quality, reasoning, map[string]string{
		"divergence": fmt.Sprintf("%.6f", divergence),
	})
}
