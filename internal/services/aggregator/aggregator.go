// Package aggregator combines agent votes into a single consensus. The only
// scoring primitive is a weighted average: per-vote scores are never summed,
// so a crowd of weak votes cannot outrank one strong vote by count alone.
package aggregator

import (
	"github.com/vadiminshakov/verdict/internal/domain"
)

// scoreEpsilon absorbs float noise when comparing the two side scores.
const scoreEpsilon = 1e-12

// Aggregator folds votes into a consensus under the config's quality gates.
type Aggregator struct {
	// minConfidence is the per-vote floor applied before partitioning.
	minConfidence float64
	// soloOverride is the strict bar a single surviving vote must clear.
	soloOverride float64
}

// New creates an aggregator with the given vote-quality gates.
func New(minConfidence, soloOverride float64) *Aggregator {
	return &Aggregator{minConfidence: minConfidence, soloOverride: soloOverride}
}

// Aggregate combines the votes using the per-agent weights. Missing weights
// default to 1. The returned consensus carries the full vote breakdown for
// audit, including skips and votes dropped by the confidence floor.
func (a *Aggregator) Aggregate(votes []domain.Vote, weights map[string]float64) domain.Consensus {
	participating := make([]domain.Vote, 0, len(votes))
	for _, v := range votes {
		if v.IsSkip() {
			continue
		}
		if v.Confidence < a.minConfidence {
			continue
		}
		participating = append(participating, v)
	}

	if len(participating) == 0 {
		return domain.EmptyConsensus(votes)
	}
	if len(participating) == 1 && participating[0].Confidence <= a.soloOverride {
		// a lone vote is only trusted above the high-confidence override
		return domain.EmptyConsensus(votes)
	}

	upScore, upCount := directionScore(participating, domain.DirectionUp, weights)
	downScore, downCount := directionScore(participating, domain.DirectionDown, weights)

	var winner domain.Direction
	var score float64
	var winnerCount int
	switch {
	case upScore-downScore > scoreEpsilon:
		winner, score, winnerCount = domain.DirectionUp, upScore, upCount
	case downScore-upScore > scoreEpsilon:
		winner, score, winnerCount = domain.DirectionDown, downScore, downCount
	case upCount > downCount:
		// scores tie: the side carrying more independent voters wins
		winner, score, winnerCount = domain.DirectionUp, upScore, upCount
	case downCount > upCount:
		winner, score, winnerCount = domain.DirectionDown, downScore, downCount
	default:
		// a fully symmetric tie must not default to either side
		return domain.EmptyConsensus(votes)
	}

	return domain.Consensus{
		Direction:     winner,
		WeightedScore: score,
		Participating: len(participating),
		AgreementRate: float64(winnerCount) / float64(len(participating)),
		Votes:         votes,
	}
}

// directionScore computes the weighted average confidence*quality over the
// votes on one side. The division by total weight bounds the score to [0,1]
// regardless of vote count.
func directionScore(votes []domain.Vote, direction domain.Direction, weights map[string]float64) (float64, int) {
	var weighted, totalWeight float64
	count := 0
	for _, v := range votes {
		if v.Direction != direction {
			continue
		}
		w := 1.0
		if configured, ok := weights[v.Agent]; ok {
			w = configured
		}
		weighted += v.Confidence * v.Quality * w
		totalWeight += w
		count++
	}
	if totalWeight == 0 {
		return 0, 0
	}
	return weighted / totalWeight, count
}
