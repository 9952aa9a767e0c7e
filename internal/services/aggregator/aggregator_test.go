package aggregator

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/domain"
)

func vote(t *testing.T, agent string, dir domain.Direction, conf, qual float64) domain.Vote {
	t.Helper()
	v, err := domain.NewVote(agent, dir, conf, qual, "test", nil)
	require.NoError(t, err)
	return v
}

func TestAggregateAllSkipsYieldsNoConsensus(t *testing.T) {
	agg := New(0.1, 0.85)
	votes := []domain.Vote{
		domain.NewSkipVote("momentum", "no signal"),
		domain.NewSkipVote("meanrevert", "rsi in band"),
		domain.NewSkipVote("velocity", "stale samples"),
	}

	c := agg.Aggregate(votes, nil)
	require.False(t, c.Reached())
	require.Equal(t, 0, c.Participating)
	require.Len(t, c.Votes, 3, "skips stay in the audit breakdown")
}

func TestAggregateAveragesNeverSums(t *testing.T) {
	agg := New(0.1, 0.85)
	votes := []domain.Vote{
		vote(t, "a", domain.DirectionUp, 0.35, 0.4),
		vote(t, "b", domain.DirectionUp, 0.35, 0.4),
		vote(t, "c", domain.DirectionUp, 0.35, 0.4),
	}

	c := agg.Aggregate(votes, nil)
	require.True(t, c.Reached())
	require.Equal(t, domain.DirectionUp, c.Direction)
	// three identical weak votes average to one weak score, they do not stack
	require.InDelta(t, 0.14, c.WeightedScore, 1e-9)
}

func TestAggregateScoreBoundedByOne(t *testing.T) {
	agg := New(0.1, 0.85)
	votes := []domain.Vote{
		vote(t, "a", domain.DirectionUp, 1.0, 1.0),
		vote(t, "b", domain.DirectionUp, 1.0, 1.0),
		vote(t, "c", domain.DirectionUp, 1.0, 1.0),
		vote(t, "d", domain.DirectionUp, 1.0, 1.0),
	}

	c := agg.Aggregate(votes, map[string]float64{"a": 2, "b": 2, "c": 2, "d": 2})
	require.InDelta(t, 1.0, c.WeightedScore, 1e-9)
	require.LessOrEqual(t, c.WeightedScore, 1.0)
}

func TestAggregateSymmetricTieIsEmpty(t *testing.T) {
	agg := New(0.1, 0.85)
	votes := []domain.Vote{
		vote(t, "a", domain.DirectionUp, 0.6, 0.7),
		vote(t, "b", domain.DirectionDown, 0.6, 0.7),
	}

	c := agg.Aggregate(votes, nil)
	require.False(t, c.Reached())
	require.Equal(t, 2, c.Participating)
}

func TestAggregateScoreTieBrokenByVoterCount(t *testing.T) {
	agg := New(0.1, 0.85)
	// both sides average to 0.42 but Up carries two voters against one
	votes := []domain.Vote{
		vote(t, "a", domain.DirectionUp, 0.80, 0.9),
		vote(t, "b", domain.DirectionUp, 0.30, 0.4),
		vote(t, "c", domain.DirectionDown, 0.60, 0.7),
	}

	c := agg.Aggregate(votes, nil)
	require.True(t, c.Reached())
	require.Equal(t, domain.DirectionUp, c.Direction)
	require.InDelta(t, 0.42, c.WeightedScore, 1e-9)
	require.Equal(t, 3, c.Participating)
	require.InDelta(t, 2.0/3.0, c.AgreementRate, 1e-9)
}

func TestAggregateSoloVoteNeedsOverrideConfidence(t *testing.T) {
	agg := New(0.1, 0.85)

	weak := agg.Aggregate([]domain.Vote{vote(t, "a", domain.DirectionDown, 0.80, 0.9)}, nil)
	require.False(t, weak.Reached(), "0.80 does not clear the 0.85 override")

	strong := agg.Aggregate([]domain.Vote{vote(t, "a", domain.DirectionDown, 0.90, 0.9)}, nil)
	require.True(t, strong.Reached())
	require.Equal(t, domain.DirectionDown, strong.Direction)
	require.InDelta(t, 1.0, strong.AgreementRate, 1e-9)
}

func TestAggregateConfidenceFloorDropsVotes(t *testing.T) {
	agg := New(0.25, 0.85)
	votes := []domain.Vote{
		vote(t, "a", domain.DirectionUp, 0.20, 0.9), // below floor
		vote(t, "b", domain.DirectionDown, 0.50, 0.5),
		vote(t, "c", domain.DirectionDown, 0.60, 0.6),
	}

	c := agg.Aggregate(votes, nil)
	require.True(t, c.Reached())
	require.Equal(t, domain.DirectionDown, c.Direction)
	require.Equal(t, 2, c.Participating)
}

func TestAggregateWeightsShiftTheBalance(t *testing.T) {
	agg := New(0.1, 0.85)
	votes := []domain.Vote{
		vote(t, "a", domain.DirectionUp, 0.6, 0.8),
		vote(t, "b", domain.DirectionDown, 0.7, 0.8),
	}

	// unweighted, Down wins on raw score
	c := agg.Aggregate(votes, nil)
	require.Equal(t, domain.DirectionDown, c.Direction)

	// weights only scale within a side's average, never across sides,
	// so a heavier Up vote still averages to the same per-side score
	c = agg.Aggregate(votes, map[string]float64{"a": 3})
	require.Equal(t, domain.DirectionDown, c.Direction)
	require.InDelta(t, 0.56, c.WeightedScore, 1e-9)
}
