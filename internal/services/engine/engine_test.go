package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/agents"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/services/aggregator"
	"github.com/vadiminshakov/verdict/internal/services/risk"
	"github.com/vadiminshakov/verdict/internal/storage/account"
	"go.uber.org/zap"
)

type stubAgent struct {
	name string
	vote domain.Vote
	err  error
}

func (s stubAgent) Name() string { return s.name }

func (s stubAgent) Evaluate(context.Context, domain.MarketContext) (domain.Vote, error) {
	return s.vote, s.err
}

type panicAgent struct{}

func (panicAgent) Name() string { return "panicky" }

func (panicAgent) Evaluate(context.Context, domain.MarketContext) (domain.Vote, error) {
	panic("boom")
}

func voting(t *testing.T, name string, dir domain.Direction, conf, qual float64) stubAgent {
	t.Helper()
	v, err := domain.NewVote(name, dir, conf, qual, "stub", nil)
	require.NoError(t, err)
	return stubAgent{name: name, vote: v}
}

func testGuardian(t *testing.T, balance int64) *risk.Guardian {
	t.Helper()
	store, err := account.NewStore(filepath.Join(t.TempDir(), "account.json"))
	require.NoError(t, err)
	g, err := risk.NewGuardian(domain.NewAccountState(decimal.NewFromInt(balance)), risk.DefaultLimits(), store, nil)
	require.NoError(t, err)
	return g
}

func testConfig() domain.StrategyConfig {
	return domain.StrategyConfig{
		Name:                   "test",
		ConsensusThreshold:     0.75,
		MinAgreement:           0.5,
		MinAgentConfidence:     0.1,
		SoloConfidenceOverride: 0.85,
		Agents:                 []string{agents.AgentMomentum},
		Sizing:                 domain.SizingPolicy{Kind: domain.SizingTiered},
	}
}

func testEngine(t *testing.T, cfg domain.StrategyConfig, guardian *risk.Guardian, stubs ...agents.Agent) *Engine {
	t.Helper()
	return &Engine{
		cfg:        cfg,
		agents:     stubs,
		aggregator: aggregator.New(cfg.MinAgentConfidence, cfg.SoloConfidenceOverride),
		guardian:   guardian,
		tracker:    NewBalanceTracker(),
		entryPrice: flatEntryPrice,
		workers:    defaultAgentWorkers,
		logger:     zap.NewNop(),
	}
}

func testContext(t *testing.T) domain.MarketContext {
	t.Helper()
	pair, err := domain.ParsePair("BTC_USDT")
	require.NoError(t, err)
	now := time.Now().UTC()
	return domain.MarketContext{
		Pair:       pair,
		EventID:    "ev-1",
		EpochStart: now,
		EpochEnd:   now.Add(5 * time.Minute),
	}
}

func TestDecideWeakConsensusDoesNotTrade(t *testing.T) {
	e := testEngine(t, testConfig(), testGuardian(t, 1000),
		voting(t, "a", domain.DirectionUp, 0.80, 0.9),
		voting(t, "b", domain.DirectionUp, 0.30, 0.4),
		voting(t, "c", domain.DirectionDown, 0.60, 0.7),
	)

	d := e.Decide(context.Background(), testContext(t))
	require.False(t, d.ShouldTrade)
	require.Equal(t, domain.DirectionNone, d.Direction)
	// both sides average to 0.42, far below the 0.75 threshold
	require.InDelta(t, 0.42, d.Consensus.WeightedScore, 1e-9)
	require.Contains(t, d.Reason, "below threshold")
	require.NotEmpty(t, d.ID)
}

func TestDecideStrongConsensusTrades(t *testing.T) {
	e := testEngine(t, testConfig(), testGuardian(t, 1000),
		voting(t, "a", domain.DirectionUp, 0.90, 0.95),
		voting(t, "b", domain.DirectionUp, 0.85, 0.90),
	)

	d := e.Decide(context.Background(), testContext(t))
	require.True(t, d.ShouldTrade)
	require.Equal(t, domain.DirectionUp, d.Direction)
	require.True(t, d.Size.GreaterThan(decimal.Zero))
	require.Equal(t, "0.5", d.Price.String())
	require.NotEmpty(t, d.Reason)
}

func TestDecideRiskVetoCarriesReason(t *testing.T) {
	guardian := testGuardian(t, 1000)
	require.NoError(t, guardian.Halt("manual"))

	e := testEngine(t, testConfig(), guardian,
		voting(t, "a", domain.DirectionUp, 0.90, 0.95),
		voting(t, "b", domain.DirectionUp, 0.85, 0.90),
	)

	d := e.Decide(context.Background(), testContext(t))
	require.False(t, d.ShouldTrade)
	require.Contains(t, d.Reason, "risk veto")
}

func TestDecideFailingAndPanickingAgentsDegradeToSkip(t *testing.T) {
	e := testEngine(t, testConfig(), testGuardian(t, 1000),
		panicAgent{},
		stubAgent{name: "broken", err: context.DeadlineExceeded},
		voting(t, "healthy", domain.DirectionUp, 0.90, 0.95),
	)

	d := e.Decide(context.Background(), testContext(t))
	require.Len(t, d.Consensus.Votes, 3, "every agent yields a vote, trade or skip")
	require.True(t, d.ShouldTrade, "one healthy high-confidence vote clears the solo override")
	require.Equal(t, domain.DirectionUp, d.Direction)
}

func TestDecideAbandonsExpiredTick(t *testing.T) {
	e := testEngine(t, testConfig(), testGuardian(t, 1000),
		voting(t, "a", domain.DirectionUp, 0.90, 0.95),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := e.Decide(ctx, testContext(t))
	require.False(t, d.ShouldTrade)
	require.Contains(t, d.Reason, "abandoned")
}

func TestBalanceTrackerFlagsBias(t *testing.T) {
	tr := NewBalanceTracker()

	// 15 ups against 5 downs crosses the 70% line
	var biased bool
	var dominant domain.Direction
	for i := 0; i < 15; i++ {
		biased, dominant, _ = tr.Record(domain.DirectionUp)
	}
	for i := 0; i < 5; i++ {
		biased, dominant, _ = tr.Record(domain.DirectionDown)
	}
	require.True(t, biased)
	require.Equal(t, domain.DirectionUp, dominant)

	// an even split never flags
	tr = NewBalanceTracker()
	for i := 0; i < 10; i++ {
		tr.Record(domain.DirectionUp)
		biased, _, _ = tr.Record(domain.DirectionDown)
	}
	require.False(t, biased)
}

func TestBalanceTrackerNeedsMinimumSample(t *testing.T) {
	tr := NewBalanceTracker()
	for i := 0; i < trackerMinSample-1; i++ {
		biased, _, _ := tr.Record(domain.DirectionUp)
		require.False(t, biased, "below the minimum sample nothing is flagged")
	}
	biased, dominant, fraction := tr.Record(domain.DirectionUp)
	require.True(t, biased)
	require.Equal(t, domain.DirectionUp, dominant)
	require.InDelta(t, 1.0, fraction, 1e-9)
}
