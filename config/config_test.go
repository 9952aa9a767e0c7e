package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/verdict/internal/domain"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "BTC", cfg.Pair.From)
	require.Equal(t, "1000", cfg.Balance.String())
}

func TestLoadYaml(t *testing.T) {
	raw := `
mode: paper
pair: ETH_USDT
epoch: 10m
data_dir: /tmp/verdict
initial_balance: "2500"
strategies:
  - name: main
    live: true
    consensus_threshold: 0.6
    min_agreement: 0.5
    solo_confidence_override: 0.9
    agents: [momentum, velocity]
    sizing:
      kind: tiered
  - name: shadow-a
    consensus_threshold: 0.5
    min_agreement: 0.5
    solo_confidence_override: 0.9
    agents: [meanrevert]
    sizing:
      kind: kelly
      kelly_fraction: 0.25
      max_percent: 10
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, cfg.Epoch)
	require.Equal(t, domain.Pair{From: "ETH", To: "USDT"}, cfg.Pair)
	require.Len(t, cfg.Strategies, 2)
	require.True(t, cfg.Strategies[0].Live)
}

func TestValidateRejectsZeroOrTwoLiveStrategies(t *testing.T) {
	cfg := Default()
	cfg.Strategies[0].Live = false
	require.ErrorContains(t, cfg.Validate(), "exactly one strategy must be live")

	cfg = Default()
	second := cfg.Strategies[0]
	second.Name = "second"
	cfg.Strategies = append(cfg.Strategies, second)
	require.ErrorContains(t, cfg.Validate(), "exactly one strategy must be live")
}

func TestValidateRejectsUnregisteredAgent(t *testing.T) {
	cfg := Default()
	cfg.Strategies[0].Agents = []string{"oracle"}
	require.ErrorContains(t, cfg.Validate(), "unregistered agent")
}

func TestValidateRejectsBadBalance(t *testing.T) {
	cfg := Default()
	cfg.InitialBalance = "-5"
	require.Error(t, cfg.Validate())
}

func TestValidateLiveReconcileNeedsAddresses(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModeLive
	cfg.Reconcile.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "reconcile requires")
}

func TestPromoterOrDefaults(t *testing.T) {
	cfg := Default()
	p := cfg.PromoterOrDefaults()
	require.Equal(t, 24*time.Hour, p.Interval)
	require.Equal(t, 100, p.MinSample)
	require.Equal(t, []float64{0.25, 0.5, 1.0}, p.Steps)

	cfg.Promoter.MinSample = 42
	require.Equal(t, 42, cfg.PromoterOrDefaults().MinSample)
}
