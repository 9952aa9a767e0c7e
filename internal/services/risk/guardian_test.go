package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/storage/account"
)

func newTestGuardian(t *testing.T, balance int64, limits Limits) (*Guardian, *account.Store) {
	t.Helper()
	store, err := account.NewStore(filepath.Join(t.TempDir(), "account.json"))
	require.NoError(t, err)
	g, err := NewGuardian(domain.NewAccountState(decimal.NewFromInt(balance)), limits, store, nil)
	require.NoError(t, err)
	return g, store
}

func mustPair(t *testing.T, s string) domain.Pair {
	t.Helper()
	p, err := domain.ParsePair(s)
	require.NoError(t, err)
	return p
}

func openPosition(t *testing.T, g *Guardian, eventID, pair string, dir domain.Direction, size int64) domain.Position {
	t.Helper()
	pos, err := domain.NewPosition(eventID, mustPair(t, pair), dir,
		decimal.NewFromInt(size), decimal.NewFromFloat(0.5), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, g.OpenPosition(pos))
	return pos
}

func TestDrawdownHaltCeiling(t *testing.T) {
	g, _ := newTestGuardian(t, 300, DefaultLimits())

	// 29% drawdown degrades the mode but does not halt
	require.NoError(t, g.CorrectBalance(decimal.NewFromInt(213), "test"))
	require.Equal(t, domain.ModeDefensive, g.Mode())

	// 33.3% strictly exceeds the 30% ceiling
	require.NoError(t, g.CorrectBalance(decimal.NewFromInt(200), "test"))
	require.Equal(t, domain.ModeHalted, g.Mode())

	ok, reason := g.CanOpenPosition(mustPair(t, "BTC_USDT"), domain.DirectionUp)
	require.False(t, ok)
	require.Contains(t, reason, "halted")
}

func TestDrawdownExactlyAtCeilingDoesNotHalt(t *testing.T) {
	g, _ := newTestGuardian(t, 100, DefaultLimits())

	// drawdown of exactly 30% is within the ceiling, only strictly above halts
	require.NoError(t, g.CorrectBalance(decimal.NewFromInt(70), "test"))
	require.Equal(t, domain.ModeDefensive, g.Mode())
}

func TestPerInstrumentExclusivity(t *testing.T) {
	g, _ := newTestGuardian(t, 1000, DefaultLimits())
	openPosition(t, g, "ev-1", "BTC_USDT", domain.DirectionUp, 10)

	ok, reason := g.CanOpenPosition(mustPair(t, "BTC_USDT"), domain.DirectionDown)
	require.False(t, ok, "opposite side on the same instrument must be rejected")
	require.Contains(t, reason, "already held")

	ok, _ = g.CanOpenPosition(mustPair(t, "BTC_USDT"), domain.DirectionUp)
	require.False(t, ok, "doubling the same side must be rejected")

	ok, _ = g.CanOpenPosition(mustPair(t, "ETH_USDT"), domain.DirectionUp)
	require.True(t, ok)
}

func TestRecordOutcomeSettlement(t *testing.T) {
	g, _ := newTestGuardian(t, 1000, DefaultLimits())
	pos := openPosition(t, g, "ev-1", "BTC_USDT", domain.DirectionUp, 100)
	require.Equal(t, "900", g.Snapshot().CurrentBalance.String())

	// stake 100 at implied 0.5 pays 100 on a win
	win := domain.ResolveEpoch("ev-1", pos.Pair, decimal.NewFromInt(50000), decimal.NewFromInt(50100), time.Now().UTC())
	pnl, settled, err := g.RecordOutcome(win)
	require.NoError(t, err)
	require.True(t, settled)
	require.Equal(t, "100", pnl.String())

	state := g.Snapshot()
	require.Equal(t, "1100", state.CurrentBalance.String())
	require.Equal(t, "1100", state.PeakBalance.String(), "realized gain moves the peak up")
	require.Empty(t, state.OpenPositions)
	require.Equal(t, 0, state.ConsecutiveLosses)
}

func TestRecordOutcomeVoidRefundsStake(t *testing.T) {
	g, _ := newTestGuardian(t, 1000, DefaultLimits())
	pos := openPosition(t, g, "ev-1", "BTC_USDT", domain.DirectionUp, 100)

	price := decimal.NewFromInt(50000)
	void := domain.ResolveEpoch("ev-1", pos.Pair, price, price, time.Now().UTC())
	pnl, settled, err := g.RecordOutcome(void)
	require.NoError(t, err)
	require.True(t, settled)
	require.True(t, pnl.IsZero())
	require.Equal(t, "1000", g.Snapshot().CurrentBalance.String())
}

func TestLossStreakEntersRecovery(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxOpenPositions = 10
	g, _ := newTestGuardian(t, 10000, limits)

	pairs := []string{"BTC_USDT", "ETH_USDT", "SOL_USDT", "BNB_USDT", "XRP_USDT"}
	for i, pair := range pairs {
		eventID := "ev-" + pair
		pos := openPosition(t, g, eventID, pair, domain.DirectionUp, 10)
		loss := domain.ResolveEpoch(eventID, pos.Pair, decimal.NewFromInt(100), decimal.NewFromInt(99), time.Now().UTC())
		_, _, err := g.RecordOutcome(loss)
		require.NoError(t, err)
		if i < len(pairs)-1 {
			require.Equal(t, domain.ModeNormal, g.Mode())
		}
	}
	require.Equal(t, 5, g.Snapshot().ConsecutiveLosses)
	require.Equal(t, domain.ModeRecovery, g.Mode())
}

func TestPeakSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")
	store, err := account.NewStore(path)
	require.NoError(t, err)

	g, err := NewGuardian(domain.NewAccountState(decimal.NewFromInt(1000)), DefaultLimits(), store, nil)
	require.NoError(t, err)
	pos := openPosition(t, g, "ev-1", "BTC_USDT", domain.DirectionUp, 100)
	win := domain.ResolveEpoch("ev-1", pos.Pair, decimal.NewFromInt(1), decimal.NewFromInt(2), time.Now().UTC())
	_, _, err = g.RecordOutcome(win)
	require.NoError(t, err)
	require.Equal(t, "1100", g.Snapshot().PeakBalance.String())

	loaded, found, err := store.Load()
	require.NoError(t, err)
	require.True(t, found)

	replacement, err := NewGuardian(loaded, DefaultLimits(), store, nil)
	require.NoError(t, err)
	require.Equal(t, "1100", replacement.Snapshot().PeakBalance.String(),
		"peak is scoped to account lifetime, not to the process or the day")
}

func TestKillFileHalts(t *testing.T) {
	killPath := filepath.Join(t.TempDir(), "KILL")
	limits := DefaultLimits()
	limits.KillFile = killPath
	g, _ := newTestGuardian(t, 1000, limits)

	ok, _ := g.CanOpenPosition(mustPair(t, "BTC_USDT"), domain.DirectionUp)
	require.True(t, ok)

	require.NoError(t, os.WriteFile(killPath, nil, 0o644))
	ok, reason := g.CanOpenPosition(mustPair(t, "BTC_USDT"), domain.DirectionUp)
	require.False(t, ok)
	require.Contains(t, reason, "halted")

	// resume is refused while the file is still on disk
	require.Error(t, g.Resume())
	require.NoError(t, os.Remove(killPath))
	require.NoError(t, g.Resume())
	require.Equal(t, domain.ModeNormal, g.Mode())
}

type failingStore struct{ fail bool }

func (f *failingStore) Save(domain.AccountState) error {
	if f.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestPersistenceFailureHalts(t *testing.T) {
	store := &failingStore{}
	g, err := NewGuardian(domain.NewAccountState(decimal.NewFromInt(1000)), DefaultLimits(), store, nil)
	require.NoError(t, err)

	store.fail = true
	pos, err := domain.NewPosition("ev-1", mustPair(t, "BTC_USDT"), domain.DirectionUp,
		decimal.NewFromInt(10), decimal.NewFromFloat(0.5), time.Now().UTC())
	require.NoError(t, err)
	require.Error(t, g.OpenPosition(pos))
	require.Equal(t, domain.ModeHalted, g.Mode())

	state := g.Snapshot()
	require.Equal(t, "1000", state.CurrentBalance.String(), "failed write must not mutate the balance")
	require.Empty(t, state.OpenPositions)
}

func TestSizePositionTieredWithModeMultiplier(t *testing.T) {
	g, _ := newTestGuardian(t, 500, DefaultLimits())
	policy := domain.SizingPolicy{Kind: domain.SizingTiered}

	// 3% tier for balances up to 1000
	size := g.SizePosition(policy, 0.8)
	require.Equal(t, "15", size.String())

	// conservative mode halves the stake
	require.NoError(t, g.CorrectBalance(decimal.NewFromInt(440), "test"))
	require.Equal(t, domain.ModeConservative, g.Mode())
	size = g.SizePosition(policy, 0.8)
	require.Equal(t, "6.6", size.String())
}

func TestSizePositionKellyBounded(t *testing.T) {
	g, _ := newTestGuardian(t, 1000, DefaultLimits())
	policy := domain.SizingPolicy{
		Kind:          domain.SizingKelly,
		KellyFraction: 0.25,
		MinPercent:    0.5,
		MaxPercent:    5,
	}

	// 0.8 * 0.25 = 20% raw, clamped to the 5% max
	size := g.SizePosition(policy, 0.8)
	require.Equal(t, "50", size.String())

	// a tiny edge is floored to the minimum percent
	size = g.SizePosition(policy, 0.01)
	require.Equal(t, "5", size.String())
}
