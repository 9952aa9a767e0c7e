package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAccountStateDrawdown(t *testing.T) {
	state := NewAccountState(decimal.NewFromInt(300))
	state.CurrentBalance = decimal.NewFromInt(200)

	require.InDelta(t, 1.0/3.0, state.Drawdown(), 1e-9)

	// redeemable value counts toward the effective balance
	state.Redeemable = decimal.NewFromInt(50)
	require.InDelta(t, 1.0/6.0, state.Drawdown(), 1e-9)
}

func TestAccountStateValidate(t *testing.T) {
	pair := Pair{From: "BTC", To: "USDT"}
	now := time.Now()

	state := NewAccountState(decimal.NewFromInt(100))
	require.NoError(t, state.Validate())

	state.CurrentBalance = decimal.NewFromInt(150)
	require.Error(t, state.Validate(), "current balance above peak must be rejected")

	state = NewAccountState(decimal.NewFromInt(100))
	pos, err := NewPosition("evt-1", pair, DirectionUp, decimal.NewFromInt(10), decimal.NewFromFloat(0.5), now)
	require.NoError(t, err)
	state.OpenPositions = []Position{pos, pos}
	require.Error(t, state.Validate(), "duplicate pair+direction must be rejected")
}

func TestPositionPayout(t *testing.T) {
	pair := Pair{From: "BTC", To: "USDT"}
	pos, err := NewPosition("evt-1", pair, DirectionUp, decimal.NewFromInt(10), decimal.NewFromFloat(0.5), time.Now())
	require.NoError(t, err)

	// even odds: 10 staked at 0.5 pays 10 profit
	require.True(t, pos.Payout().Equal(decimal.NewFromInt(10)), "got %s", pos.Payout())

	_, err = NewPosition("evt-1", pair, DirectionUp, decimal.NewFromInt(10), decimal.NewFromInt(1), time.Now())
	require.Error(t, err, "entry price of 1 has no payout")

	_, err = NewPosition("evt-1", pair, DirectionSkip, decimal.NewFromInt(10), decimal.NewFromFloat(0.5), time.Now())
	require.Error(t, err)
}

func TestResolveEpoch(t *testing.T) {
	pair := Pair{From: "BTC", To: "USDT"}

	up := ResolveEpoch("evt-1", pair, decimal.NewFromInt(100), decimal.NewFromInt(101), time.Now())
	require.Equal(t, DirectionUp, up.Direction)
	require.True(t, up.Wins(DirectionUp))
	require.False(t, up.Wins(DirectionDown))

	down := ResolveEpoch("evt-2", pair, decimal.NewFromInt(100), decimal.NewFromInt(99), time.Now())
	require.Equal(t, DirectionDown, down.Direction)

	void := ResolveEpoch("evt-3", pair, decimal.NewFromInt(100), decimal.NewFromInt(100), time.Now())
	require.True(t, void.Void())
	require.False(t, void.Wins(DirectionUp))
	require.False(t, void.Wins(DirectionDown))
}
