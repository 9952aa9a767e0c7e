// Package agents hosts the independent signal sources that vote on epoch
// direction. Agents are side-effect-free with respect to each other: the
// only state an agent keeps is its own rolling direction history, used to
// damp confidence when a fresh signal conflicts with its recent trend.
package agents

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// Agent maps a market context to a single vote. Implementations must return
// a skip vote whenever required input is missing, stale, or the signal falls
// at or below the agent's noise floor.
type Agent interface {
	Name() string
	Evaluate(ctx context.Context, mc domain.MarketContext) (domain.Vote, error)
}

// Factory builds a fresh agent instance. Every strategy runner gets its own
// instances so shadow configs never share trend history with the live one.
type Factory func() Agent

// Registry returns the built-in agent factories keyed by name.
func Registry() map[string]Factory {
	return map[string]Factory{
		AgentMomentum:     func() Agent { return NewMomentum() },
		AgentMeanRevert:   func() Agent { return NewMeanRevert() },
		AgentMACDCross:    func() Agent { return NewMACDCross() },
		AgentBookPressure: func() Agent { return NewBookPressure() },
		AgentVelocity:     func() Agent { return NewVelocity() },
	}
}

// Registered returns the set of known agent names, used for config
// validation.
func Registered() map[string]bool {
	reg := Registry()
	names := make(map[string]bool, len(reg))
	for name := range reg {
		names[name] = true
	}
	return names
}

// Build instantiates fresh agents for the given names.
func Build(names []string) ([]Agent, error) {
	reg := Registry()
	built := make([]Agent, 0, len(names))
	for _, name := range names {
		factory, ok := reg[name]
		if !ok {
			return nil, errors.Errorf("unregistered agent %q", name)
		}
		built = append(built, factory())
	}
	return built, nil
}

const (
	trendHistoryLimit = 5
	trendConflictLen  = 3
	// conflictDamping scales confidence down when a vote goes against the
	// agent's own recent multi-epoch trend.
	conflictDamping = 0.5
	// minDirectionalConfidence keeps damped directional votes valid.
	minDirectionalConfidence = 0.05
)

// trendHistory tracks the agent's last directional votes per instrument.
type trendHistory struct {
	limit  int
	byPair map[string][]domain.Direction
}

func newTrendHistory() *trendHistory {
	return &trendHistory{limit: trendHistoryLimit, byPair: make(map[string][]domain.Direction)}
}

func (h *trendHistory) record(pair domain.Pair, d domain.Direction) {
	if !d.IsDirectional() {
		return
	}
	key := pair.String()
	window := append(h.byPair[key], d)
	if len(window) > h.limit {
		window = window[len(window)-h.limit:]
	}
	h.byPair[key] = window
}

// conflicts reports whether the last few recorded directions unanimously
// oppose d.
func (h *trendHistory) conflicts(pair domain.Pair, d domain.Direction) bool {
	window := h.byPair[pair.String()]
	if len(window) < trendConflictLen {
		return false
	}
	opposite := d.Opposite()
	for _, prev := range window[len(window)-trendConflictLen:] {
		if prev != opposite {
			return false
		}
	}
	return true
}

// dampedConfidence applies the trend-conflict reduction, keeping the vote
// directional.
func dampedConfidence(confidence float64) float64 {
	damped := confidence * conflictDamping
	if damped < minDirectionalConfidence {
		return minDirectionalConfidence
	}
	return damped
}

// recentAgreement measures how consistently the last candles moved with the
// proposed direction, used by agents as self-assessed signal quality.
func recentAgreement(closes []decimal.Decimal, direction domain.Direction, window int) float64 {
	if len(closes) < 2 || window < 1 {
		return 0
	}
	if len(closes)-1 < window {
		window = len(closes) - 1
	}

	matches := 0
	for i := len(closes) - window; i < len(closes); i++ {
		diff := closes[i].Cmp(closes[i-1])
		if (direction == domain.DirectionUp && diff > 0) || (direction == domain.DirectionDown && diff < 0) {
			matches++
		}
	}
	return float64(matches) / float64(window)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
