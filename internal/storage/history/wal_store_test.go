package history

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/domain"
)

func testDecision(config, eventID string) DecisionRecord {
	return DecisionRecord{
		Config:  config,
		EventID: eventID,
		Decision: domain.TradeDecision{
			ID:          "d-1",
			Config:      config,
			EventID:     eventID,
			ShouldTrade: true,
			Direction:   domain.DirectionUp,
			Size:        decimal.NewFromInt(10),
			Reason:      "test",
		},
		RecordedAt: time.Now().UTC(),
	}
}

func TestWALStoreDecisionRoundTrip(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	start := store.CurrentIndex()
	require.NoError(t, store.SaveDecision(testDecision("live", "evt-1")))
	require.NoError(t, store.SaveDecision(testDecision("shadow-a", "evt-1")))

	records, err := store.DecisionsAfter(start)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "live", records[0].Config)
	require.Equal(t, domain.DirectionUp, records[0].Decision.Direction)

	seen, err := store.DecidedPairs()
	require.NoError(t, err)
	require.Contains(t, seen, "live|evt-1")
	require.Contains(t, seen, "shadow-a|evt-1")
	require.NotContains(t, seen, "live|evt-2")
}

func TestWALStoreOutcomeDoesNotPolluteDecisions(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	start := store.CurrentIndex()
	require.NoError(t, store.SaveDecision(testDecision("live", "evt-1")))
	require.NoError(t, store.SaveOutcome(OutcomeRecord{
		Config:  "live",
		EventID: "evt-1",
		Traded:  true,
		Win:     true,
		PnL:     decimal.NewFromInt(10),
	}))

	records, err := store.DecisionsAfter(start)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestWALStoreValidation(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.Error(t, store.SaveDecision(DecisionRecord{EventID: "evt-1"}))
	require.Error(t, store.SaveOutcome(OutcomeRecord{Config: "live"}))
}
