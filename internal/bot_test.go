package internal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/agents"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/events"
	"github.com/vadiminshakov/verdict/internal/services/executor"
	"github.com/vadiminshakov/verdict/internal/services/feed"
	"github.com/vadiminshakov/verdict/internal/services/notifier"
	"github.com/vadiminshakov/verdict/internal/services/risk"
	"github.com/vadiminshakov/verdict/internal/services/shadow"
	"github.com/vadiminshakov/verdict/internal/storage/history"
	"github.com/vadiminshakov/verdict/internal/storage/performance"
	"go.uber.org/zap"
)

var botPair = domain.Pair{From: "BTC", To: "USDT"}

func testBot(t *testing.T) (*Bot, *history.WALStore) {
	t.Helper()
	dir := t.TempDir()

	cfg := domain.StrategyConfig{
		Name:                   "baseline",
		Live:                   true,
		ConsensusThreshold:     0.55,
		MinAgreement:           0.6,
		SoloConfidenceOverride: 0.9,
		Agents:                 []string{agents.AgentMomentum, agents.AgentVelocity},
		Sizing:                 domain.SizingPolicy{Kind: domain.SizingTiered, MaxPercent: 5},
	}
	runner, err := shadow.NewRunner(cfg, dir, decimal.NewFromInt(1000), risk.DefaultLimits(), zap.NewNop())
	require.NoError(t, err)

	hist, err := history.NewWALStore(dir + "/wal")
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	perf, err := performance.NewTracker(dir + "/perf.json")
	require.NoError(t, err)

	orch, err := shadow.NewOrchestrator([]*shadow.Runner{runner}, hist, perf, zap.NewNop())
	require.NoError(t, err)

	source := feed.NewSimulatedSource(decimal.NewFromInt(50000), 0.002, 7)
	collector, err := feed.NewCollector([]feed.Source{source}, source, source, zap.NewNop())
	require.NoError(t, err)

	bot := NewBot(botPair, time.Minute, collector, orch, executor.NewPaper(zap.NewNop()),
		notifier.Nop{}, events.NewDecisionBroadcaster(8), zap.NewNop())
	return bot, hist
}

func TestEventID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	require.Equal(t, "BTC_USDT@2026-03-01T12:05:00Z", EventID(botPair, at))
}

func TestDecideRecordsDecision(t *testing.T) {
	bot, hist := testBot(t)

	start := time.Now().UTC().Truncate(time.Minute)
	mc := bot.snapshot(context.Background(), start)
	require.Equal(t, EventID(botPair, start), mc.EventID)
	require.NotEmpty(t, mc.History)

	bot.decide(context.Background(), mc)
	require.Equal(t, uint64(1), hist.CurrentIndex())

	// replaying the same event must not append another record
	bot.decide(context.Background(), mc)
	require.Equal(t, uint64(1), hist.CurrentIndex())
}

func TestResolvePreviousVoidsWithoutPrices(t *testing.T) {
	bot, hist := testBot(t)

	start := time.Now().UTC().Truncate(time.Minute)
	prev := domain.MarketContext{
		Pair:       botPair,
		EventID:    EventID(botPair, start),
		EpochStart: start,
		EpochEnd:   start.Add(time.Minute),
	}
	cur := prev
	cur.EventID = EventID(botPair, start.Add(time.Minute))

	bot.resolvePrevious(prev, cur)
	// the outcome is bookkept for the single runner, but nothing was traded
	require.Equal(t, uint64(1), hist.CurrentIndex())
	acct := bot.orchestrator.LiveRunner().Account()
	require.Equal(t, "1000", acct.CurrentBalance.String())
}

func TestSettledPnL(t *testing.T) {
	pos, err := domain.NewPosition("evt", botPair, domain.DirectionUp,
		decimal.NewFromInt(100), decimal.RequireFromString("0.5"), time.Now())
	require.NoError(t, err)

	win := domain.ResolveEpoch("evt", botPair, decimal.NewFromInt(100), decimal.NewFromInt(101), time.Now())
	require.Equal(t, "100", settledPnL(pos, win).String())

	loss := domain.ResolveEpoch("evt", botPair, decimal.NewFromInt(100), decimal.NewFromInt(99), time.Now())
	require.Equal(t, "-100", settledPnL(pos, loss).String())

	void := domain.ResolveEpoch("evt", botPair, decimal.NewFromInt(100), decimal.NewFromInt(100), time.Now())
	require.True(t, settledPnL(pos, void).IsZero())
}
