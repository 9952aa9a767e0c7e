package reconciler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/services/risk"
	"github.com/vadiminshakov/verdict/internal/storage/account"
)

type fixedProvider struct {
	balance decimal.Decimal
}

func (f fixedProvider) Balance(context.Context) (decimal.Decimal, error) {
	return f.balance, nil
}

func newGuardian(t *testing.T, balance int64) *risk.Guardian {
	t.Helper()
	store, err := account.NewStore(filepath.Join(t.TempDir(), "account.json"))
	require.NoError(t, err)
	g, err := risk.NewGuardian(domain.NewAccountState(decimal.NewFromInt(balance)), risk.DefaultLimits(), store, nil)
	require.NoError(t, err)
	return g
}

func TestReconcileWithinThresholdLeavesBalance(t *testing.T) {
	g := newGuardian(t, 1000)
	r, err := New(fixedProvider{balance: decimal.NewFromInt(950)}, g, 0.10, nil)
	require.NoError(t, err)

	require.NoError(t, r.Reconcile(context.Background()))
	require.Equal(t, "1000", g.Snapshot().CurrentBalance.String(), "5% off is within tolerance")
}

func TestReconcileCorrectsMaterialDiscrepancy(t *testing.T) {
	g := newGuardian(t, 1000)
	r, err := New(fixedProvider{balance: decimal.NewFromInt(700)}, g, 0.10, nil)
	require.NoError(t, err)

	require.NoError(t, r.Reconcile(context.Background()))

	state := g.Snapshot()
	require.Equal(t, "700", state.CurrentBalance.String())
	require.Equal(t, "1000", state.PeakBalance.String(), "a downward correction never rewrites the peak")
}

func TestReconcileRaisesPeakWithUpwardCorrection(t *testing.T) {
	g := newGuardian(t, 1000)
	r, err := New(fixedProvider{balance: decimal.NewFromInt(1500)}, g, 0.10, nil)
	require.NoError(t, err)

	require.NoError(t, r.Reconcile(context.Background()))

	state := g.Snapshot()
	require.Equal(t, "1500", state.CurrentBalance.String())
	require.Equal(t, "1500", state.PeakBalance.String(), "peak covers the corrected balance")
}
