// Package engine orchestrates one strategy config through a tick: agents
// vote in parallel, the aggregator folds the votes, the guardian gates and
// sizes the result. Every decision carries a specific reason, trade or not.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/agents"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/services/aggregator"
	"github.com/vadiminshakov/verdict/internal/services/risk"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultAgentWorkers = 4

// EntryPricer estimates the implied entry price of the chosen side at
// decision time. The executor's fill price remains authoritative for the
// opened position.
type EntryPricer func(mc domain.MarketContext, direction domain.Direction) decimal.Decimal

// flatEntryPrice assumes a symmetric epoch market paying even odds.
func flatEntryPrice(domain.MarketContext, domain.Direction) decimal.Decimal {
	return decimal.NewFromFloat(0.5)
}

// Engine evaluates one strategy config against market ticks.
type Engine struct {
	cfg        domain.StrategyConfig
	agents     []agents.Agent
	aggregator *aggregator.Aggregator
	guardian   *risk.Guardian
	tracker    *BalanceTracker
	entryPrice EntryPricer
	workers    int
	logger     *zap.Logger
}

// Option configures optional engine behavior.
type Option func(*Engine)

// WithEntryPricer overrides the flat implied-price estimate.
func WithEntryPricer(p EntryPricer) Option {
	return func(e *Engine) { e.entryPrice = p }
}

// WithAgentWorkers bounds the parallel agent evaluation pool.
func WithAgentWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New builds an engine with its own agent instances for cfg. The config must
// already be validated against the agent registry.
func New(cfg domain.StrategyConfig, guardian *risk.Guardian, logger *zap.Logger, opts ...Option) (*Engine, error) {
	built, err := agents.Build(cfg.Agents)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:        cfg,
		agents:     built,
		aggregator: aggregator.New(cfg.MinAgentConfidence, cfg.SoloConfidenceOverride),
		guardian:   guardian,
		tracker:    NewBalanceTracker(),
		entryPrice: flatEntryPrice,
		workers:    defaultAgentWorkers,
		logger:     logger.With(zap.String("config", cfg.Name)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's strategy config.
func (e *Engine) Config() domain.StrategyConfig {
	return e.cfg
}

// Decide runs the full vote-aggregate-gate sequence for one tick. The
// returned decision is immutable. A tick whose context expires mid-flight
// yields an abandoned no-trade decision; stale decisions are never applied.
func (e *Engine) Decide(ctx context.Context, mc domain.MarketContext) domain.TradeDecision {
	votes := e.collectVotes(ctx, mc)

	if err := ctx.Err(); err != nil {
		e.logger.Warn("tick abandoned", zap.String("event", mc.EventID), zap.Error(err))
		return e.noTrade(mc, domain.EmptyConsensus(votes), "tick abandoned: epoch deadline passed")
	}

	consensus := e.aggregator.Aggregate(votes, e.cfg.Weights)
	switch {
	case !consensus.Reached():
		return e.noTrade(mc, consensus, "no directional consensus among agents")
	case consensus.WeightedScore < e.cfg.ConsensusThreshold:
		return e.noTrade(mc, consensus, fmt.Sprintf("weighted score %.3f below threshold %.3f",
			consensus.WeightedScore, e.cfg.ConsensusThreshold))
	case consensus.AgreementRate < e.cfg.MinAgreement:
		return e.noTrade(mc, consensus, fmt.Sprintf("agreement %.0f%% below required %.0f%%",
			consensus.AgreementRate*100, e.cfg.MinAgreement*100))
	}

	if ok, reason := e.guardian.CanOpenPosition(mc.Pair, consensus.Direction); !ok {
		return e.noTrade(mc, consensus, "risk veto: "+reason)
	}

	size := e.guardian.SizePosition(e.cfg.Sizing, consensus.WeightedScore)
	if size.LessThanOrEqual(decimal.Zero) {
		return e.noTrade(mc, consensus, "sizing produced no tradable amount")
	}

	if biased, dominant, fraction := e.tracker.Record(consensus.Direction); biased {
		e.logger.Warn("directional bias in executed trades",
			zap.String("dominant", dominant.String()),
			zap.Float64("fraction", fraction))
	}

	return domain.TradeDecision{
		ID:          uuid.NewString(),
		Config:      e.cfg.Name,
		EventID:     mc.EventID,
		Pair:        mc.Pair,
		ShouldTrade: true,
		Direction:   consensus.Direction,
		Size:        size,
		Price:       e.entryPrice(mc, consensus.Direction),
		Reason: fmt.Sprintf("%s consensus: score %.3f, agreement %.0f%% of %d agents",
			consensus.Direction, consensus.WeightedScore, consensus.AgreementRate*100, consensus.Participating),
		Consensus: consensus,
		CreatedAt: time.Now().UTC(),
	}
}

// collectVotes evaluates all agents in parallel under a bounded pool. A
// failing or panicking agent degrades to a skip vote; one broken signal
// source never aborts the tick.
func (e *Engine) collectVotes(ctx context.Context, mc domain.MarketContext) []domain.Vote {
	votes := make([]domain.Vote, len(e.agents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, agent := range e.agents {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("agent panicked",
						zap.String("agent", agent.Name()), zap.Any("panic", r))
					votes[i] = domain.NewSkipVote(agent.Name(), "agent panicked")
				}
			}()

			vote, err := agent.Evaluate(gctx, mc)
			if err != nil {
				e.logger.Warn("agent failed, degrading to skip",
					zap.String("agent", agent.Name()), zap.Error(err))
				votes[i] = domain.NewSkipVote(agent.Name(), "evaluation failed: "+err.Error())
				return nil
			}
			votes[i] = vote
			return nil
		})
	}
	// goroutines never return errors, the group is used for the pool bound
	_ = g.Wait()

	return votes
}

func (e *Engine) noTrade(mc domain.MarketContext, consensus domain.Consensus, reason string) domain.TradeDecision {
	return domain.TradeDecision{
		ID:          uuid.NewString(),
		Config:      e.cfg.Name,
		EventID:     mc.EventID,
		Pair:        mc.Pair,
		ShouldTrade: false,
		Direction:   domain.DirectionNone,
		Reason:      reason,
		Consensus:   consensus,
		CreatedAt:   time.Now().UTC(),
	}
}
