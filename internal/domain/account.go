package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Mode is the risk guardian's trading mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeConservative
	ModeDefensive
	ModeRecovery
	ModeHalted
)

const (
	modeStringNormal       = "normal"
	modeStringConservative = "conservative"
	modeStringDefensive    = "defensive"
	modeStringRecovery     = "recovery"
	modeStringHalted       = "halted"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeConservative:
		return modeStringConservative
	case ModeDefensive:
		return modeStringDefensive
	case ModeRecovery:
		return modeStringRecovery
	case ModeHalted:
		return modeStringHalted
	default:
		return modeStringNormal
	}
}

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case modeStringNormal:
		return ModeNormal, nil
	case modeStringConservative:
		return ModeConservative, nil
	case modeStringDefensive:
		return ModeDefensive, nil
	case modeStringRecovery:
		return ModeRecovery, nil
	case modeStringHalted:
		return ModeHalted, nil
	}
	return ModeNormal, fmt.Errorf("unknown mode: %q", s)
}

// MarshalJSON serialises the mode as a readable string.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON parses the string form written by MarshalJSON.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Position is one open stake on a binary event, unique per pair+direction.
type Position struct {
	EventID   string          `json:"event_id"`
	Pair      Pair            `json:"pair"`
	Direction Direction       `json:"direction"`
	Size      decimal.Decimal `json:"size"`
	// EntryPrice is the implied probability paid for the chosen side.
	EntryPrice decimal.Decimal `json:"entry_price"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// NewPosition builds a validated open position.
func NewPosition(eventID string, pair Pair, direction Direction, size, entryPrice decimal.Decimal, openedAt time.Time) (Position, error) {
	if eventID == "" {
		return Position{}, errors.New("position event id is required")
	}
	if !direction.IsDirectional() {
		return Position{}, errors.Errorf("position direction must be up or down, got %s", direction)
	}
	if size.LessThanOrEqual(decimal.Zero) {
		return Position{}, errors.New("position size must be greater than zero")
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) || entryPrice.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Position{}, errors.Errorf("position entry price must be within (0,1), got %s", entryPrice)
	}

	return Position{
		EventID:    eventID,
		Pair:       pair,
		Direction:  direction,
		Size:       size,
		EntryPrice: entryPrice,
		OpenedAt:   openedAt,
	}, nil
}

// Payout returns the realized profit if the position wins: staking size at
// implied price p pays size*(1-p)/p.
func (p Position) Payout() decimal.Decimal {
	one := decimal.NewFromInt(1)
	return p.Size.Mul(one.Sub(p.EntryPrice)).Div(p.EntryPrice)
}

// AccountState is the only long-lived mutable entity. It is owned and
// mutated exclusively by the risk guardian and persisted after every
// mutation.
//
// Invariant: CurrentBalance <= PeakBalance. PeakBalance is monotonic for the
// account lifetime and only moves up on a realized balance increase; it is
// never reset by a wall-clock boundary.
type AccountState struct {
	CurrentBalance decimal.Decimal `json:"current_balance"`
	PeakBalance    decimal.Decimal `json:"peak_balance"`
	// Redeemable is mark-to-market value of already-won, not yet settled
	// positions. It counts toward the effective balance; open unresolved
	// positions do not.
	Redeemable        decimal.Decimal `json:"redeemable"`
	Mode              Mode            `json:"mode"`
	HaltReason        string          `json:"halt_reason,omitempty"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	DailyPnL          decimal.Decimal `json:"daily_pnl"`
	DailyPnLDay       string          `json:"daily_pnl_day,omitempty"`
	OpenPositions     []Position      `json:"open_positions,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewAccountState initialises a fresh account.
func NewAccountState(balance decimal.Decimal) AccountState {
	return AccountState{
		CurrentBalance: balance,
		PeakBalance:    balance,
		Mode:           ModeNormal,
		UpdatedAt:      time.Now().UTC(),
	}
}

// EffectiveBalance is cash plus redeemable value, excluding open unresolved
// positions.
func (a AccountState) EffectiveBalance() decimal.Decimal {
	return a.CurrentBalance.Add(a.Redeemable)
}

// Drawdown is the fractional decline of the effective balance from the
// all-time peak.
func (a AccountState) Drawdown() float64 {
	if a.PeakBalance.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	dd := a.PeakBalance.Sub(a.EffectiveBalance()).Div(a.PeakBalance)
	if dd.IsNegative() {
		return 0
	}
	f, _ := dd.Float64()
	return f
}

// FindPosition returns the open position on the pair, if any.
func (a AccountState) FindPosition(pair Pair, direction Direction) (Position, bool) {
	for _, p := range a.OpenPositions {
		if p.Pair == pair && p.Direction == direction {
			return p, true
		}
	}
	return Position{}, false
}

// DirectionCount counts open positions sharing one direction.
func (a AccountState) DirectionCount(direction Direction) int {
	n := 0
	for _, p := range a.OpenPositions {
		if p.Direction == direction {
			n++
		}
	}
	return n
}

// Validate checks structural invariants, used when loading persisted state.
func (a AccountState) Validate() error {
	if a.CurrentBalance.IsNegative() {
		return errors.New("current balance is negative")
	}
	if a.CurrentBalance.GreaterThan(a.PeakBalance) {
		return errors.Errorf("current balance %s exceeds peak %s", a.CurrentBalance, a.PeakBalance)
	}
	seen := make(map[string]struct{}, len(a.OpenPositions))
	for _, p := range a.OpenPositions {
		key := p.Pair.String() + "|" + p.Direction.String()
		if _, ok := seen[key]; ok {
			return errors.Errorf("duplicate open position for %s %s", p.Pair, p.Direction)
		}
		seen[key] = struct{}{}
	}
	return nil
}
