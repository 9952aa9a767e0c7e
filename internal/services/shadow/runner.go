// Package shadow runs many strategy configs against the same event stream.
// One config is live; the rest trade on paper with fully isolated state so
// their tracked performance is comparable to the live one.
package shadow

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/services/engine"
	"github.com/vadiminshakov/verdict/internal/services/risk"
	"github.com/vadiminshakov/verdict/internal/storage/account"
	"go.uber.org/zap"
)

// Runner binds one strategy config to its own engine, guardian and account.
// Nothing is shared across runners: agent trend history, balances, modes and
// open positions are all per-config.
type Runner struct {
	cfg      domain.StrategyConfig
	engine   *engine.Engine
	guardian *risk.Guardian
}

// NewRunner creates an isolated runner. The account lives in its own file
// under accountsDir; an existing record is resumed, otherwise the account
// starts fresh at initialBalance.
func NewRunner(cfg domain.StrategyConfig, accountsDir string, initialBalance decimal.Decimal, limits risk.Limits, logger *zap.Logger, opts ...engine.Option) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := account.NewStore(filepath.Join(accountsDir, cfg.Name+".json"))
	if err != nil {
		return nil, errors.Wrapf(err, "account store for %s", cfg.Name)
	}

	state, found, err := store.Load()
	if err != nil {
		return nil, errors.Wrapf(err, "load account for %s", cfg.Name)
	}
	if !found {
		state = domain.NewAccountState(initialBalance)
	}

	guardian, err := risk.NewGuardian(state, limits, store, logger.With(zap.String("config", cfg.Name)))
	if err != nil {
		return nil, errors.Wrapf(err, "guardian for %s", cfg.Name)
	}

	eng, err := engine.New(cfg, guardian, logger, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "engine for %s", cfg.Name)
	}

	return &Runner{cfg: cfg, engine: eng, guardian: guardian}, nil
}

// Config returns the runner's strategy config.
func (r *Runner) Config() domain.StrategyConfig {
	return r.cfg
}

// Decide evaluates one tick.
func (r *Runner) Decide(ctx context.Context, mc domain.MarketContext) domain.TradeDecision {
	return r.engine.Decide(ctx, mc)
}

// Open books a position from a decision. Shadow runners call this directly
// with the decision's estimated entry; the live path calls it only after the
// executor confirms the fill, with the actual fill price and size.
func (r *Runner) Open(decision domain.TradeDecision, fillPrice, fillSize decimal.Decimal) error {
	if !decision.ShouldTrade {
		return errors.New("cannot open a position from a no-trade decision")
	}

	pos, err := domain.NewPosition(decision.EventID, decision.Pair, decision.Direction,
		fillSize, fillPrice, decision.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "build position")
	}
	return r.guardian.OpenPosition(pos)
}

// ApplyOutcome settles the runner's position on the event, if it holds one.
func (r *Runner) ApplyOutcome(outcome domain.EventOutcome) (decimal.Decimal, bool, error) {
	return r.guardian.RecordOutcome(outcome)
}

// Account returns a copy of the runner's account state.
func (r *Runner) Account() domain.AccountState {
	return r.guardian.Snapshot()
}

// Guardian exposes the runner's guardian for manual control and balance
// reconciliation on the live account.
func (r *Runner) Guardian() *risk.Guardian {
	return r.guardian
}
