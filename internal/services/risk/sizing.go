package risk

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// modeMultiplier throttles the stake as the account degrades.
func modeMultiplier(mode domain.Mode) float64 {
	switch mode {
	case domain.ModeConservative:
		return 0.5
	case domain.ModeDefensive, domain.ModeRecovery:
		return 0.25
	case domain.ModeHalted:
		return 0
	default:
		return 1.0
	}
}

// balance tiers for the tiered sizer: smaller accounts stake a larger share
// so positions stay above exchange minimums, larger accounts scale down.
var sizingTiers = []struct {
	upTo    decimal.Decimal
	percent float64
}{
	{decimal.NewFromInt(100), 5.0},
	{decimal.NewFromInt(1_000), 3.0},
	{decimal.NewFromInt(10_000), 2.0},
}

const defaultTierPercent = 1.0

// SizePosition computes the stake for an approved decision. Zero means the
// current mode or bounds leave no tradable size; callers must treat that as
// a veto.
func (g *Guardian) SizePosition(policy domain.SizingPolicy, weightedScore float64) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()

	balance := g.state.CurrentBalance
	if balance.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	mult := modeMultiplier(g.state.Mode)
	if mult == 0 {
		return decimal.Zero
	}

	var percent float64
	switch policy.Kind {
	case domain.SizingKelly:
		// edge for a binary stake at fair odds is the weighted score itself;
		// fractional Kelly scales it down to a survivable bet
		percent = weightedScore * policy.KellyFraction * 100
	default:
		percent = tierPercent(balance)
	}

	percent *= mult
	if policy.MinPercent > 0 && percent < policy.MinPercent {
		percent = policy.MinPercent
	}
	if policy.MaxPercent > 0 && percent > policy.MaxPercent {
		percent = policy.MaxPercent
	}
	if percent <= 0 {
		return decimal.Zero
	}

	size := balance.Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100))
	if size.GreaterThan(balance) {
		size = balance
	}
	return size.Round(8)
}

func tierPercent(balance decimal.Decimal) float64 {
	for _, tier := range sizingTiers {
		if balance.LessThanOrEqual(tier.upTo) {
			return tier.percent
		}
	}
	return defaultTierPercent
}
