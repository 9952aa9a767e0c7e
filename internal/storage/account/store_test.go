package account

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/pkg/atomicfile"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	_, found, err := store.Load()
	require.NoError(t, err)
	require.False(t, found)

	state := domain.NewAccountState(decimal.NewFromInt(500))
	state.CurrentBalance = decimal.NewFromInt(420)
	state.ConsecutiveLosses = 2
	state.Mode = domain.ModeConservative
	require.NoError(t, store.Save(state))

	loaded, found, err := store.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, loaded.CurrentBalance.Equal(decimal.NewFromInt(420)))
	require.True(t, loaded.PeakBalance.Equal(decimal.NewFromInt(500)), "peak must survive a restart")
	require.Equal(t, domain.ModeConservative, loaded.Mode)
	require.Equal(t, 2, loaded.ConsecutiveLosses)
}

func TestStoreRejectsInvalidRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "account.json")
	store, err := NewStore(path)
	require.NoError(t, err)

	// a record violating the peak invariant must be surfaced, not trusted
	require.NoError(t, atomicfile.Write(path, []byte(`{"current_balance":"500","peak_balance":"100"}`)))
	_, _, err = store.Load()
	require.Error(t, err)

	require.NoError(t, atomicfile.Write(path, []byte(`{broken`)))
	_, _, err = store.Load()
	require.Error(t, err)
}
