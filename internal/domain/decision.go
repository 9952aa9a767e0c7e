package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeDecision is the decision engine's final output for one
// (event, strategy config) pair. Reason is always populated, also for
// no-trade decisions.
type TradeDecision struct {
	ID          string          `json:"id"`
	Config      string          `json:"config"`
	EventID     string          `json:"event_id"`
	Pair        Pair            `json:"pair"`
	ShouldTrade bool            `json:"should_trade"`
	Direction   Direction       `json:"direction"`
	Size        decimal.Decimal `json:"size"`
	// Price is the implied entry price of the chosen side at decision time,
	// used for payout accounting once the event resolves.
	Price     decimal.Decimal `json:"price"`
	Reason    string          `json:"reason"`
	Consensus Consensus       `json:"consensus"`
	CreatedAt time.Time       `json:"created_at"`
}
