// Package notifier delivers structured trading events to an external
// channel. Publishing is fire-and-forget with at-least-once semantics: the
// core never blocks on delivery and tolerates duplicates.
package notifier

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

// Kind classifies an outbound event.
type Kind string

const (
	KindTradeOpened    Kind = "trade_opened"
	KindTradeResolved  Kind = "trade_resolved"
	KindModeTransition Kind = "mode_transition"
	KindHalt           Kind = "halt"
)

// Event is one notification.
type Event struct {
	Kind Kind
	Text string
}

// Notifier publishes events without blocking the caller.
type Notifier interface {
	Publish(event Event)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Notifier.
func (Nop) Publish(Event) {}

// TradeOpened formats a fill notification.
func TradeOpened(decision domain.TradeDecision, fillPrice decimal.Decimal) Event {
	return Event{
		Kind: KindTradeOpened,
		Text: fmt.Sprintf("*%s* opened %s %s: size %s at %s\n%s",
			decision.Config, decision.Pair, decision.Direction,
			decision.Size, fillPrice, decision.Reason),
	}
}

// TradeResolved formats a settlement notification.
func TradeResolved(config string, outcome domain.EventOutcome, pnl decimal.Decimal) Event {
	verdict := "lost"
	if pnl.GreaterThan(decimal.Zero) {
		verdict = "won"
	} else if pnl.IsZero() {
		verdict = "void"
	}
	return Event{
		Kind: KindTradeResolved,
		Text: fmt.Sprintf("*%s* %s %s on %s: pnl %s",
			config, verdict, outcome.EventID, outcome.Pair, pnl),
	}
}

// ModeTransition formats a risk mode change.
func ModeTransition(from, to domain.Mode, drawdown float64) Event {
	return Event{
		Kind: KindModeTransition,
		Text: fmt.Sprintf("risk mode %s -> %s (drawdown %.1f%%)", from, to, drawdown*100),
	}
}

// Halted formats a halt notification.
func Halted(reason string) Event {
	return Event{
		Kind: KindHalt,
		Text: "🛑 trading halted: " + reason,
	}
}
