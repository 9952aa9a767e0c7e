// Package risk owns the account state machine. The guardian is the only
// writer of AccountState: every approval, fill and outcome goes through it
// under one lock, and every mutation is persisted before the call returns.
package risk

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
	"go.uber.org/zap"
)

// Store persists account state after each mutation.
type Store interface {
	Save(state domain.AccountState) error
}

// Limits are the guardian's transition thresholds.
type Limits struct {
	// Drawdown bands. Crossing a band moves the mode down; Halt is terminal
	// until an explicit resume.
	ConservativeDrawdown float64 `yaml:"conservative_drawdown"`
	DefensiveDrawdown    float64 `yaml:"defensive_drawdown"`
	HaltDrawdown         float64 `yaml:"halt_drawdown"`
	// RecoveryLossStreak forces recovery mode after this many losses in a row.
	RecoveryLossStreak int `yaml:"recovery_loss_streak"`
	MaxOpenPositions   int `yaml:"max_open_positions"`
	MaxPerDirection    int `yaml:"max_per_direction"`
	// KillFile halts trading while the file exists.
	KillFile string `yaml:"kill_file,omitempty"`
}

// DefaultLimits returns the stock thresholds.
func DefaultLimits() Limits {
	return Limits{
		ConservativeDrawdown: 0.10,
		DefensiveDrawdown:    0.20,
		HaltDrawdown:         0.30,
		RecoveryLossStreak:   5,
		MaxOpenPositions:     5,
		MaxPerDirection:      3,
	}
}

// Guardian guards one account. It approves or vetoes position openings,
// sizes approved positions, and applies resolved outcomes.
type Guardian struct {
	mu     sync.Mutex
	state  domain.AccountState
	limits Limits
	store  Store
	logger *zap.Logger
}

// NewGuardian wraps an account state loaded by the caller. The state is
// persisted immediately so a fresh account exists on disk before the first
// decision.
func NewGuardian(state domain.AccountState, limits Limits, store Store, logger *zap.Logger) (*Guardian, error) {
	if store == nil {
		return nil, errors.New("guardian requires a store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := state.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid account state")
	}

	g := &Guardian{
		state:  state,
		limits: limits,
		store:  store,
		logger: logger,
	}
	if err := store.Save(g.state); err != nil {
		return nil, errors.Wrap(err, "persist initial account state")
	}
	return g, nil
}

// CanOpenPosition checks whether a new position on pair/direction is
// admissible. A false result carries a specific reason.
func (g *Guardian) CanOpenPosition(pair domain.Pair, direction domain.Direction) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.killFilePresent() {
		g.haltLocked("kill file present: " + g.limits.KillFile)
	}

	switch {
	case g.state.Mode == domain.ModeHalted:
		return false, "trading halted: " + g.state.HaltReason
	case !direction.IsDirectional():
		return false, "direction must be up or down"
	}

	// one position per instrument, regardless of side: an opposite stake
	// is a hedge against ourselves, a same-side stake doubles exposure
	for _, p := range g.state.OpenPositions {
		if p.Pair == pair {
			return false, "open " + p.Direction.String() + " position already held on " + pair.String()
		}
	}
	if len(g.state.OpenPositions) >= g.limits.MaxOpenPositions {
		return false, "max open positions reached"
	}
	if g.state.DirectionCount(direction) >= g.limits.MaxPerDirection {
		return false, "max open " + direction.String() + " positions reached"
	}
	return true, ""
}

// OpenPosition records a filled position. Callers invoke this only after the
// executor confirms the fill; a failed placement must leave the account
// untouched.
func (g *Guardian) OpenPosition(position domain.Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Mode == domain.ModeHalted {
		return errors.New("trading halted: " + g.state.HaltReason)
	}
	for _, p := range g.state.OpenPositions {
		if p.Pair == position.Pair {
			return errors.Errorf("position already open on %s", position.Pair)
		}
	}
	if position.Size.GreaterThan(g.state.CurrentBalance) {
		return errors.Errorf("position size %s exceeds balance %s", position.Size, g.state.CurrentBalance)
	}

	next := g.state
	next.CurrentBalance = next.CurrentBalance.Sub(position.Size)
	next.OpenPositions = append(clonePositions(next.OpenPositions), position)
	next.UpdatedAt = time.Now().UTC()

	return g.commit(next)
}

// RecordOutcome settles the open position matching the outcome's pair, if
// any. A win credits stake plus payout, a void refunds the stake, a loss
// forfeits it. Peak only moves up, and only here, on a realized gain.
// The second return value reports whether a position was actually settled.
func (g *Guardian) RecordOutcome(outcome domain.EventOutcome) (decimal.Decimal, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for i, p := range g.state.OpenPositions {
		if p.Pair == outcome.Pair && p.EventID == outcome.EventID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return decimal.Zero, false, nil
	}
	pos := g.state.OpenPositions[idx]

	next := g.state
	next.OpenPositions = append(clonePositions(next.OpenPositions[:idx]), next.OpenPositions[idx+1:]...)

	var pnl decimal.Decimal
	switch {
	case outcome.Void():
		next.CurrentBalance = next.CurrentBalance.Add(pos.Size)
		pnl = decimal.Zero
	case outcome.Wins(pos.Direction):
		credit := pos.Size.Add(pos.Payout())
		next.CurrentBalance = next.CurrentBalance.Add(credit)
		pnl = pos.Payout()
		next.ConsecutiveLosses = 0
	default:
		pnl = pos.Size.Neg()
		next.ConsecutiveLosses++
	}

	if next.CurrentBalance.GreaterThan(next.PeakBalance) {
		next.PeakBalance = next.CurrentBalance
	}
	next.DailyPnL = dailyPnL(next, pnl, outcome.ResolvedAt)
	next.DailyPnLDay = outcome.ResolvedAt.UTC().Format("2006-01-02")
	next.UpdatedAt = time.Now().UTC()

	g.reevaluateLocked(&next)

	if err := g.commit(next); err != nil {
		return decimal.Zero, true, err
	}

	g.logger.Info("outcome recorded",
		zap.String("pair", outcome.Pair.String()),
		zap.String("event", outcome.EventID),
		zap.String("pnl", pnl.String()),
		zap.String("balance", g.state.CurrentBalance.String()),
		zap.String("mode", g.state.Mode.String()),
		zap.Int("loss_streak", g.state.ConsecutiveLosses))
	return pnl, true, nil
}

// dailyPnL accumulates within one UTC day and starts over on the next. Only
// the daily counter follows the calendar; peak never does.
func dailyPnL(state domain.AccountState, pnl decimal.Decimal, at time.Time) decimal.Decimal {
	day := at.UTC().Format("2006-01-02")
	if state.DailyPnLDay != day {
		return pnl
	}
	return state.DailyPnL.Add(pnl)
}

// reevaluateLocked recomputes the mode from drawdown and loss streak.
// Halted is sticky: only Resume leaves it.
func (g *Guardian) reevaluateLocked(next *domain.AccountState) {
	if next.Mode == domain.ModeHalted {
		return
	}

	dd := next.Drawdown()
	prev := next.Mode
	switch {
	case dd > g.limits.HaltDrawdown:
		next.Mode = domain.ModeHalted
		next.HaltReason = "drawdown ceiling exceeded"
	case next.ConsecutiveLosses >= g.limits.RecoveryLossStreak:
		next.Mode = domain.ModeRecovery
	case dd > g.limits.DefensiveDrawdown:
		next.Mode = domain.ModeDefensive
	case dd > g.limits.ConservativeDrawdown:
		next.Mode = domain.ModeConservative
	default:
		next.Mode = domain.ModeNormal
	}

	if next.Mode != prev {
		g.logger.Warn("mode transition",
			zap.String("from", prev.String()),
			zap.String("to", next.Mode.String()),
			zap.Float64("drawdown", dd),
			zap.Int("loss_streak", next.ConsecutiveLosses))
	}
}

// Halt stops trading until Resume. Reachable from any state.
func (g *Guardian) Halt(reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.haltLocked(reason)
}

func (g *Guardian) haltLocked(reason string) error {
	if g.state.Mode == domain.ModeHalted {
		return nil
	}
	next := g.state
	next.Mode = domain.ModeHalted
	next.HaltReason = reason
	next.UpdatedAt = time.Now().UTC()

	g.logger.Error("trading halted", zap.String("reason", reason))
	return g.commit(next)
}

// Resume is the explicit external exit from Halted. It recomputes the mode
// from current drawdown rather than assuming Normal.
func (g *Guardian) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Mode != domain.ModeHalted {
		return nil
	}
	if g.killFilePresent() {
		return errors.Errorf("kill file still present: %s", g.limits.KillFile)
	}

	next := g.state
	next.Mode = domain.ModeNormal
	next.HaltReason = ""
	next.UpdatedAt = time.Now().UTC()
	g.reevaluateLocked(&next)
	if next.Mode == domain.ModeHalted {
		return errors.New("cannot resume: drawdown still above ceiling")
	}

	g.logger.Info("trading resumed", zap.String("mode", next.Mode.String()))
	return g.commit(next)
}

// CorrectBalance reconciles the account with an authoritative external
// balance. Peak is raised to cover the corrected balance so the
// current<=peak invariant holds without rewriting peak history downward.
func (g *Guardian) CorrectBalance(balance decimal.Decimal, source string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.state.CurrentBalance
	next := g.state
	next.CurrentBalance = balance
	if balance.GreaterThan(next.PeakBalance) {
		next.PeakBalance = balance
	}
	next.UpdatedAt = time.Now().UTC()
	g.reevaluateLocked(&next)

	g.logger.Warn("account balance corrected from authoritative source",
		zap.String("source", source),
		zap.String("was", prev.String()),
		zap.String("now", balance.String()))
	return g.commit(next)
}

// Snapshot returns a copy of the current state for read-only consumers.
func (g *Guardian) Snapshot() domain.AccountState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.state
	out.OpenPositions = clonePositions(g.state.OpenPositions)
	return out
}

// Mode returns the current trading mode.
func (g *Guardian) Mode() domain.Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Mode
}

// commit persists next and only then makes it current. An unwritable store
// halts trading in memory: continuing on unsaved state risks double-spending
// the balance after a restart.
func (g *Guardian) commit(next domain.AccountState) error {
	if err := g.store.Save(next); err != nil {
		g.state.Mode = domain.ModeHalted
		g.state.HaltReason = "persistence failure: " + err.Error()
		g.logger.Error("account state persistence failed, halting", zap.Error(err))
		return errors.Wrap(err, "persist account state")
	}
	g.state = next
	return nil
}

func (g *Guardian) killFilePresent() bool {
	if g.limits.KillFile == "" {
		return false
	}
	_, err := os.Stat(g.limits.KillFile)
	return err == nil
}

func clonePositions(in []domain.Position) []domain.Position {
	out := make([]domain.Position, len(in))
	copy(out, in)
	return out
}
