// Package config loads and validates the bot configuration. Malformed
// strategy configs are rejected at load time, never silently substituted.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/agents"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/services/risk"
	"gopkg.in/yaml.v3"
)

// Trading modes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Sources configures the external price feeds.
type Sources struct {
	BinanceAPIKey    string `yaml:"binance_api_key,omitempty"`
	BinanceSecretKey string `yaml:"binance_secret_key,omitempty"`
	BybitAPIKey      string `yaml:"bybit_api_key,omitempty"`
	BybitSecretKey   string `yaml:"bybit_secret_key,omitempty"`
	Hyperliquid      bool   `yaml:"hyperliquid,omitempty"`
	// KlineInterval and KlineLimit shape the rolling history window.
	KlineInterval string `yaml:"kline_interval,omitempty"`
	KlineLimit    int    `yaml:"kline_limit,omitempty"`
}

// Reconcile configures the on-chain balance check.
type Reconcile struct {
	Enabled       bool          `yaml:"enabled"`
	RPCURL        string        `yaml:"rpc_url,omitempty"`
	TokenAddress  string        `yaml:"token_address,omitempty"`
	WalletAddress string        `yaml:"wallet_address,omitempty"`
	TokenDecimals int32         `yaml:"token_decimals,omitempty"`
	Interval      time.Duration `yaml:"interval,omitempty"`
	Threshold     float64       `yaml:"threshold,omitempty"`
}

// Telegram configures the notification channel.
type Telegram struct {
	Token  string `yaml:"token,omitempty"`
	ChatID string `yaml:"chat_id,omitempty"`
}

// Promoter tunes the auto promotion cadence and gates.
type Promoter struct {
	Interval      time.Duration `yaml:"interval,omitempty"`
	MinSample     int           `yaml:"min_sample,omitempty"`
	WinRateMargin float64       `yaml:"win_rate_margin,omitempty"`
	RiskAdjMargin float64       `yaml:"risk_adj_margin,omitempty"`
	RollbackFloor float64       `yaml:"rollback_floor,omitempty"`
	Steps         []float64     `yaml:"steps,omitempty"`
}

// Config is the full bot configuration.
type Config struct {
	Mode           string        `yaml:"mode"`
	PairStr        string        `yaml:"pair"`
	Epoch          time.Duration `yaml:"epoch"`
	DataDir        string        `yaml:"data_dir"`
	InitialBalance string        `yaml:"initial_balance"`
	WebAddr        string        `yaml:"web_addr,omitempty"`

	Sources    Sources                 `yaml:"sources,omitempty"`
	Risk       risk.Limits             `yaml:"risk,omitempty"`
	Reconcile  Reconcile               `yaml:"reconcile,omitempty"`
	Telegram   Telegram                `yaml:"telegram,omitempty"`
	Promoter   Promoter                `yaml:"promoter,omitempty"`
	Strategies []domain.StrategyConfig `yaml:"strategies"`

	// derived fields, populated by Validate
	Pair    domain.Pair     `yaml:"-"`
	Balance decimal.Decimal `yaml:"-"`
}

// Default returns a paper-mode configuration with one live strategy.
func Default() Config {
	return Config{
		Mode:           ModePaper,
		PairStr:        "BTC_USDT",
		Epoch:          5 * time.Minute,
		DataDir:        "data",
		InitialBalance: "1000",
		WebAddr:        ":8080",
		Risk:           risk.DefaultLimits(),
		Strategies: []domain.StrategyConfig{
			{
				Name:                   "baseline",
				Live:                   true,
				ConsensusThreshold:     0.55,
				MinAgreement:           0.6,
				MinAgentConfidence:     0.1,
				SoloConfidenceOverride: 0.85,
				Agents:                 []string{agents.AgentMomentum, agents.AgentMeanRevert, agents.AgentVelocity},
				Sizing:                 domain.SizingPolicy{Kind: domain.SizingTiered, MaxPercent: 5},
			},
		},
	}
}

// Get reads the configuration from the path given by -config, falling back
// to the paper-mode defaults when the flag is absent.
func Get() (Config, error) {
	path := flag.String("config", "", "path to yaml config")
	setup := flag.Bool("setup", false, "run the interactive setup wizard")
	flag.Parse()

	if *setup {
		return Config{}, ErrSetupRequested
	}
	if *path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	return Load(*path)
}

// ErrSetupRequested signals that the caller should run the setup wizard.
var ErrSetupRequested = errors.New("setup requested")

// Load reads and validates a yaml config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration and populates the derived fields.
func (c *Config) Validate() error {
	if c.Mode != ModePaper && c.Mode != ModeLive {
		return errors.Errorf("mode must be %q or %q, got %q", ModePaper, ModeLive, c.Mode)
	}

	pair, err := domain.ParsePair(c.PairStr)
	if err != nil {
		return errors.Wrap(err, "invalid pair")
	}
	c.Pair = pair

	balance, err := decimal.NewFromString(c.InitialBalance)
	if err != nil || balance.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("initial_balance must be a positive number, got %q", c.InitialBalance)
	}
	c.Balance = balance

	if c.Epoch <= 0 {
		return errors.New("epoch must be positive")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if len(c.Strategies) == 0 {
		return errors.New("at least one strategy is required")
	}

	registered := agents.Registered()
	live := 0
	names := make(map[string]bool, len(c.Strategies))
	for _, s := range c.Strategies {
		if err := s.Validate(registered); err != nil {
			return errors.Wrap(err, "invalid strategy")
		}
		if names[s.Name] {
			return errors.Errorf("duplicate strategy name %q", s.Name)
		}
		names[s.Name] = true
		if s.Live {
			live++
		}
	}
	if live != 1 {
		return errors.Errorf("exactly one strategy must be live, got %d", live)
	}

	if c.Mode == ModeLive && c.Reconcile.Enabled {
		if c.Reconcile.RPCURL == "" || c.Reconcile.TokenAddress == "" || c.Reconcile.WalletAddress == "" {
			return errors.New("reconcile requires rpc_url, token_address and wallet_address")
		}
	}

	return nil
}

// PromoterOrDefaults fills unset promoter knobs from the stock values.
func (c *Config) PromoterOrDefaults() Promoter {
	p := c.Promoter
	if p.Interval <= 0 {
		p.Interval = 24 * time.Hour
	}
	if p.MinSample <= 0 {
		p.MinSample = 100
	}
	if p.WinRateMargin <= 0 {
		p.WinRateMargin = 0.05
	}
	if p.RiskAdjMargin <= 0 {
		p.RiskAdjMargin = 0.10
	}
	if p.RollbackFloor <= 0 {
		p.RollbackFloor = 0.05
	}
	if len(p.Steps) == 0 {
		p.Steps = []float64{0.25, 0.5, 1.0}
	}
	return p
}
