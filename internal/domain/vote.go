package domain

import (
	"github.com/pkg/errors"
)

// Vote is the atomic judgment a single agent emits for one event.
//
// A Skip vote is a structural abstention: it must carry zero confidence and
// zero quality, and the constructor enforces that. Agents that lack positive
// evidence must return a Skip vote instead of guessing a side.
type Vote struct {
	Agent      string            `json:"agent"`
	Direction  Direction         `json:"direction"`
	Confidence float64           `json:"confidence"`
	Quality    float64           `json:"quality"`
	Reasoning  string            `json:"reasoning"`
	Details    map[string]string `json:"details,omitempty"`
}

// NewVote builds a validated vote. Directional votes require positive
// confidence; Skip votes must carry confidence = quality = 0.
func NewVote(agent string, direction Direction, confidence, quality float64, reasoning string, details map[string]string) (Vote, error) {
	if agent == "" {
		return Vote{}, errors.New("vote agent name is required")
	}
	if confidence < 0 || confidence > 1 {
		return Vote{}, errors.Errorf("vote confidence must be within [0,1], got %f", confidence)
	}
	if quality < 0 || quality > 1 {
		return Vote{}, errors.Errorf("vote quality must be within [0,1], got %f", quality)
	}

	switch direction {
	case DirectionUp, DirectionDown:
		if confidence == 0 {
			return Vote{}, errors.New("directional vote requires positive confidence, return a skip vote instead")
		}
	case DirectionSkip:
		if confidence != 0 || quality != 0 {
			return Vote{}, errors.New("skip vote must carry zero confidence and zero quality")
		}
	default:
		return Vote{}, errors.Errorf("invalid vote direction: %s", direction)
	}

	return Vote{
		Agent:      agent,
		Direction:  direction,
		Confidence: confidence,
		Quality:    quality,
		Reasoning:  reasoning,
		Details:    details,
	}, nil
}

// NewSkipVote builds an abstention carrying only the reason.
func NewSkipVote(agent, reasoning string) Vote {
	return Vote{
		Agent:     agent,
		Direction: DirectionSkip,
		Reasoning: reasoning,
	}
}

// IsSkip reports whether the vote abstains.
func (v Vote) IsSkip() bool {
	return v.Direction == DirectionSkip
}
