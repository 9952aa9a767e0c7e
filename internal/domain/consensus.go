package domain

// Consensus is the aggregator's combined judgment for one event.
// Direction is DirectionNone when no consensus was reached.
type Consensus struct {
	Direction     Direction `json:"direction"`
	WeightedScore float64   `json:"weighted_score"`
	Participating int       `json:"participating_votes"`
	AgreementRate float64   `json:"agreement_rate"`
	Votes         []Vote    `json:"votes,omitempty"`
}

// EmptyConsensus returns a no-direction consensus preserving the vote
// breakdown for audit.
func EmptyConsensus(votes []Vote) Consensus {
	return Consensus{Direction: DirectionNone, Votes: votes}
}

// Reached reports whether the aggregator settled on a side.
func (c Consensus) Reached() bool {
	return c.Direction.IsDirectional()
}
