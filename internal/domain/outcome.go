package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventOutcome is the resolution of one epoch event. Direction is the
// winning side; DirectionNone marks a void event (open equals close).
type EventOutcome struct {
	EventID    string          `json:"event_id"`
	Pair       Pair            `json:"pair"`
	Direction  Direction       `json:"direction"`
	OpenPrice  decimal.Decimal `json:"open_price"`
	ClosePrice decimal.Decimal `json:"close_price"`
	ResolvedAt time.Time       `json:"resolved_at"`
}

// ResolveEpoch derives the outcome of a binary up/down epoch from its open
// and close prices.
func ResolveEpoch(eventID string, pair Pair, openPrice, closePrice decimal.Decimal, resolvedAt time.Time) EventOutcome {
	direction := DirectionNone
	switch {
	case closePrice.GreaterThan(openPrice):
		direction = DirectionUp
	case closePrice.LessThan(openPrice):
		direction = DirectionDown
	}
	return EventOutcome{
		EventID:    eventID,
		Pair:       pair,
		Direction:  direction,
		OpenPrice:  openPrice,
		ClosePrice: closePrice,
		ResolvedAt: resolvedAt,
	}
}

// Void reports whether the event resolved without a winning side.
func (o EventOutcome) Void() bool {
	return o.Direction == DirectionNone
}

// Wins reports whether a stake on the given side won.
func (o EventOutcome) Wins(d Direction) bool {
	return !o.Void() && o.Direction == d
}
