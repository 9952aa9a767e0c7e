package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/events"
	"github.com/vadiminshakov/verdict/internal/services/executor"
	"github.com/vadiminshakov/verdict/internal/services/notifier"
	"github.com/vadiminshakov/verdict/internal/services/shadow"
	"go.uber.org/zap"
)

// ContextBuilder snapshots the market for one epoch event.
type ContextBuilder interface {
	BuildContext(ctx context.Context, pair domain.Pair, eventID string, epochStart, epochEnd time.Time) domain.MarketContext
}

// Bot drives the epoch loop: at every epoch boundary it resolves the
// previous event from open and close prices, then evaluates all strategy
// configs against the new event and executes the live decision.
type Bot struct {
	pair         domain.Pair
	epoch        time.Duration
	collector    ContextBuilder
	orchestrator *shadow.Orchestrator
	executor     executor.Executor
	notifier     notifier.Notifier
	decisions    *events.DecisionBroadcaster
	logger       *zap.Logger
}

// NewBot assembles the epoch loop.
func NewBot(
	pair domain.Pair,
	epoch time.Duration,
	collector ContextBuilder,
	orchestrator *shadow.Orchestrator,
	exec executor.Executor,
	notif notifier.Notifier,
	decisions *events.DecisionBroadcaster,
	logger *zap.Logger,
) *Bot {
	if notif == nil {
		notif = notifier.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		pair:         pair,
		epoch:        epoch,
		collector:    collector,
		orchestrator: orchestrator,
		executor:     exec,
		notifier:     notif,
		decisions:    decisions,
		logger:       logger,
	}
}

// EventID names the epoch event for a pair and epoch start time.
func EventID(pair domain.Pair, epochStart time.Time) string {
	return fmt.Sprintf("%s@%s", pair.String(), epochStart.UTC().Format(time.RFC3339))
}

// Run executes the epoch loop until the context is cancelled. The current
// epoch is evaluated immediately; thereafter the loop wakes at every epoch
// boundary, resolving the event that just closed before opening the next.
func (b *Bot) Run(ctx context.Context) error {
	epochStart := time.Now().UTC().Truncate(b.epoch)
	b.logger.Info("starting epoch loop",
		zap.String("pair", b.pair.String()),
		zap.Duration("epoch", b.epoch),
		zap.Time("epoch_start", epochStart))

	prev := b.evaluateEpoch(ctx, epochStart)

	for {
		next := epochStart.Add(b.epoch)
		select {
		case <-ctx.Done():
			b.logger.Info("epoch loop stopped", zap.String("pair", b.pair.String()))
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		epochStart = next
		cur := b.snapshot(ctx, epochStart)
		b.resolvePrevious(prev, cur)
		b.decide(ctx, cur)
		prev = cur
	}
}

// evaluateEpoch snapshots and decides one epoch in a single step, used for
// the partial epoch the bot starts inside of.
func (b *Bot) evaluateEpoch(ctx context.Context, epochStart time.Time) domain.MarketContext {
	mc := b.snapshot(ctx, epochStart)
	b.decide(ctx, mc)
	return mc
}

func (b *Bot) snapshot(ctx context.Context, epochStart time.Time) domain.MarketContext {
	epochEnd := epochStart.Add(b.epoch)
	return b.collector.BuildContext(ctx, b.pair, EventID(b.pair, epochStart), epochStart, epochEnd)
}

// resolvePrevious settles the event that just closed. The open price is the
// mid price captured when the event's context was built; the close price is
// the mid price of the next context. When either snapshot carries no usable
// sample the event resolves void, refunding every stake.
func (b *Bot) resolvePrevious(prev, cur domain.MarketContext) {
	open, okOpen := prev.MidPrice()
	closePrice, okClose := cur.MidPrice()
	if !okOpen || !okClose {
		b.logger.Warn("no usable price for resolution, voiding event",
			zap.String("event", prev.EventID),
			zap.Bool("open_available", okOpen),
			zap.Bool("close_available", okClose))
		open, closePrice = decimal.Zero, decimal.Zero
	}

	outcome := domain.ResolveEpoch(prev.EventID, prev.Pair, open, closePrice, time.Now().UTC())
	b.logger.Info("epoch resolved",
		zap.String("event", outcome.EventID),
		zap.String("direction", outcome.Direction.String()),
		zap.String("open", outcome.OpenPrice.String()),
		zap.String("close", outcome.ClosePrice.String()))

	live := b.orchestrator.LiveRunner()
	pos, held := findEventPosition(live.Account(), outcome)
	modeBefore := live.Guardian().Mode()

	b.orchestrator.ResolveEvent(outcome)

	if held {
		b.notifier.Publish(notifier.TradeResolved(live.Config().Name, outcome, settledPnL(pos, outcome)))
	}

	acct := live.Account()
	if acct.Mode != modeBefore {
		b.notifier.Publish(notifier.ModeTransition(modeBefore, acct.Mode, acct.Drawdown()))
		if acct.Mode == domain.ModeHalted {
			b.notifier.Publish(notifier.Halted(acct.HaltReason))
		}
	}
}

// decide fans the tick out to all runners and executes the live decision.
// An execution failure means the live position is not opened; the decision
// stays recorded and the event resolves against an empty book.
func (b *Bot) decide(ctx context.Context, mc domain.MarketContext) {
	tickCtx, cancel := context.WithDeadline(ctx, mc.EpochEnd)
	defer cancel()

	decision, ok := b.orchestrator.EvaluateTick(tickCtx, mc)
	if b.decisions != nil && decision.EventID != "" {
		b.decisions.Publish(decision)
	}
	if !ok {
		return
	}

	fill, err := b.executor.Place(tickCtx, decision)
	if err != nil {
		b.logger.Error("order placement failed, position not opened",
			zap.String("event", decision.EventID),
			zap.Error(err))
		return
	}

	if err := b.orchestrator.LiveRunner().Open(decision, fill.Price, fill.Size); err != nil {
		b.logger.Error("failed to book live position",
			zap.String("event", decision.EventID),
			zap.Error(err))
		return
	}

	b.logger.Info("live position opened",
		zap.String("event", decision.EventID),
		zap.String("direction", decision.Direction.String()),
		zap.String("size", fill.Size.String()),
		zap.String("price", fill.Price.String()))
	b.notifier.Publish(notifier.TradeOpened(decision, fill.Price))
}

func findEventPosition(acct domain.AccountState, outcome domain.EventOutcome) (domain.Position, bool) {
	for _, p := range acct.OpenPositions {
		if p.EventID == outcome.EventID {
			return p, true
		}
	}
	return domain.Position{}, false
}

// settledPnL mirrors the guardian's settlement math for notification text.
func settledPnL(pos domain.Position, outcome domain.EventOutcome) decimal.Decimal {
	switch {
	case outcome.Void():
		return decimal.Zero
	case outcome.Wins(pos.Direction):
		return pos.Payout()
	default:
		return pos.Size.Neg()
	}
}
