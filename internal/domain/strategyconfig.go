package domain

import (
	"github.com/pkg/errors"
)

// Sizing policy kinds.
const (
	SizingTiered = "tiered"
	SizingKelly  = "kelly"
)

// SizingPolicy selects how the guardian sizes an approved position.
type SizingPolicy struct {
	Kind string `json:"kind" yaml:"kind"`
	// KellyFraction scales the raw Kelly stake (e.g. 0.25 for quarter-Kelly).
	KellyFraction float64 `json:"kelly_fraction,omitempty" yaml:"kelly_fraction,omitempty"`
	// MinPercent/MaxPercent bound the stake as a percentage of balance.
	MinPercent float64 `json:"min_percent,omitempty" yaml:"min_percent,omitempty"`
	MaxPercent float64 `json:"max_percent,omitempty" yaml:"max_percent,omitempty"`
}

// StrategyConfig is an immutable value object binding one strategy variant:
// consensus gates, the enabled agent set, per-agent weights and sizing.
// One live config is active at a time; shadow configs run concurrently
// against the same event stream for comparison.
type StrategyConfig struct {
	Name string `json:"name" yaml:"name"`
	Live bool   `json:"live,omitempty" yaml:"live,omitempty"`

	// ConsensusThreshold is the minimum weighted score required to trade.
	ConsensusThreshold float64 `json:"consensus_threshold" yaml:"consensus_threshold"`
	// MinAgreement is the minimum fraction of participating votes that must
	// match the winning direction.
	MinAgreement float64 `json:"min_agreement" yaml:"min_agreement"`
	// MinAgentConfidence is the per-vote confidence floor applied before
	// aggregation.
	MinAgentConfidence float64 `json:"min_agent_confidence" yaml:"min_agent_confidence"`
	// SoloConfidenceOverride lets a single surviving vote through only above
	// this strict bar.
	SoloConfidenceOverride float64 `json:"solo_confidence_override" yaml:"solo_confidence_override"`

	Agents  []string           `json:"agents" yaml:"agents"`
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	Sizing  SizingPolicy       `json:"sizing" yaml:"sizing"`
}

// Validate rejects a malformed config at load time. registered is the set of
// agent names known to the agent registry; a config referencing an
// unregistered agent is rejected, never silently substituted.
func (c StrategyConfig) Validate(registered map[string]bool) error {
	if c.Name == "" {
		return errors.New("strategy config name is required")
	}
	if c.ConsensusThreshold <= 0 || c.ConsensusThreshold > 1 {
		return errors.Errorf("%s: consensus_threshold must be within (0,1], got %f", c.Name, c.ConsensusThreshold)
	}
	if c.MinAgreement < 0 || c.MinAgreement > 1 {
		return errors.Errorf("%s: min_agreement must be within [0,1], got %f", c.Name, c.MinAgreement)
	}
	if c.MinAgentConfidence < 0 || c.MinAgentConfidence > 1 {
		return errors.Errorf("%s: min_agent_confidence must be within [0,1], got %f", c.Name, c.MinAgentConfidence)
	}
	if c.SoloConfidenceOverride < c.MinAgentConfidence || c.SoloConfidenceOverride > 1 {
		return errors.Errorf("%s: solo_confidence_override must be within [min_agent_confidence,1], got %f", c.Name, c.SoloConfidenceOverride)
	}
	if len(c.Agents) == 0 {
		return errors.Errorf("%s: at least one agent must be enabled", c.Name)
	}

	enabled := make(map[string]bool, len(c.Agents))
	for _, name := range c.Agents {
		if !registered[name] {
			return errors.Errorf("%s: references unregistered agent %q", c.Name, name)
		}
		if enabled[name] {
			return errors.Errorf("%s: agent %q enabled twice", c.Name, name)
		}
		enabled[name] = true
	}
	for name, w := range c.Weights {
		if !enabled[name] {
			return errors.Errorf("%s: weight set for agent %q which is not enabled", c.Name, name)
		}
		if w <= 0 {
			return errors.Errorf("%s: weight for agent %q must be positive, got %f", c.Name, name, w)
		}
	}

	switch c.Sizing.Kind {
	case SizingTiered:
	case SizingKelly:
		if c.Sizing.KellyFraction <= 0 || c.Sizing.KellyFraction > 1 {
			return errors.Errorf("%s: kelly_fraction must be within (0,1], got %f", c.Name, c.Sizing.KellyFraction)
		}
	default:
		return errors.Errorf("%s: unknown sizing kind %q", c.Name, c.Sizing.Kind)
	}
	if c.Sizing.MinPercent < 0 || c.Sizing.MaxPercent > 100 || c.Sizing.MinPercent > c.Sizing.MaxPercent {
		return errors.Errorf("%s: sizing bounds must satisfy 0 <= min <= max <= 100", c.Name)
	}

	return nil
}

// Weight returns the agent's weight, defaulting to 1 when unset.
func (c StrategyConfig) Weight(agent string) float64 {
	if w, ok := c.Weights[agent]; ok {
		return w
	}
	return 1
}
