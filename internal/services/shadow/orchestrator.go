package shadow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/storage/history"
	"github.com/vadiminshakov/verdict/internal/storage/performance"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Orchestrator fans each tick out to every runner and applies resolved
// outcomes back. Decisions are recorded per (config, event) exactly once:
// a replayed tick is detected against the history WAL and skipped.
type Orchestrator struct {
	mu         sync.Mutex
	runners    []*Runner
	byName     map[string]*Runner
	live       string
	allocation float64
	seen       map[string]struct{}

	history *history.WALStore
	perf    *performance.Tracker
	logger  *zap.Logger
}

// NewOrchestrator wires the runners to the shared history and performance
// stores. Exactly one config must be marked live. Already-decided
// (config, event) pairs are loaded from the WAL so a restart never
// re-decides an event.
func NewOrchestrator(runners []*Runner, hist *history.WALStore, perf *performance.Tracker, logger *zap.Logger) (*Orchestrator, error) {
	if len(runners) == 0 {
		return nil, errors.New("at least one runner is required")
	}
	if hist == nil || perf == nil {
		return nil, errors.New("history and performance stores are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byName := make(map[string]*Runner, len(runners))
	live := ""
	for _, r := range runners {
		name := r.Config().Name
		if _, dup := byName[name]; dup {
			return nil, errors.Errorf("duplicate config name %q", name)
		}
		byName[name] = r
		if r.Config().Live {
			if live != "" {
				return nil, errors.Errorf("both %q and %q are marked live", live, name)
			}
			live = name
		}
	}
	if live == "" {
		return nil, errors.New("no config is marked live")
	}

	seen, err := hist.DecidedPairs()
	if err != nil {
		return nil, errors.Wrap(err, "load decided pairs")
	}

	return &Orchestrator{
		runners:    runners,
		byName:     byName,
		live:       live,
		allocation: 1.0,
		seen:       seen,
		history:    hist,
		perf:       perf,
		logger:     logger,
	}, nil
}

// EvaluateTick runs every runner against the tick in parallel. The returned
// decision is the live config's, with its size scaled by the current live
// allocation; ok is false when the live config already decided this event or
// chose not to trade. Shadow trades are booked on paper immediately at the
// decision's estimated entry.
func (o *Orchestrator) EvaluateTick(ctx context.Context, mc domain.MarketContext) (domain.TradeDecision, bool) {
	var (
		liveMu       sync.Mutex
		liveDecision domain.TradeDecision
		liveDecided  bool
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range o.runners {
		g.Go(func() error {
			name := r.Config().Name
			if !o.markDecided(name, mc.EventID) {
				return nil
			}

			d := r.Decide(gctx, mc)
			if err := o.history.SaveDecision(history.DecisionRecord{
				Config:     name,
				EventID:    mc.EventID,
				Decision:   d,
				RecordedAt: time.Now().UTC(),
			}); err != nil {
				o.logger.Error("decision record failed",
					zap.String("config", name), zap.String("event", mc.EventID), zap.Error(err))
			}

			if o.Live() == name {
				liveMu.Lock()
				liveDecision, liveDecided = d, d.ShouldTrade
				liveMu.Unlock()
				return nil
			}

			if d.ShouldTrade {
				if err := r.Open(d, d.Price, d.Size); err != nil {
					o.logger.Warn("shadow position not opened",
						zap.String("config", name), zap.Error(err))
				}
			}
			return nil
		})
	}
	// runner faults are isolated and logged inside the goroutines
	_ = g.Wait()

	if !liveDecided {
		return liveDecision, false
	}

	liveDecision.Size = liveDecision.Size.Mul(decimal.NewFromFloat(o.Allocation())).Round(8)
	if liveDecision.Size.LessThanOrEqual(decimal.Zero) {
		return liveDecision, false
	}
	return liveDecision, true
}

// markDecided reserves the (config, event) pair, reporting false when it was
// already decided.
func (o *Orchestrator) markDecided(config, eventID string) bool {
	key := config + "|" + eventID

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, done := o.seen[key]; done {
		return false
	}
	o.seen[key] = struct{}{}
	return true
}

// ResolveEvent applies a resolved outcome to every runner and folds settled
// trades into the performance tables. Void events refund stakes and are not
// counted as resolved trades.
func (o *Orchestrator) ResolveEvent(outcome domain.EventOutcome) {
	for _, r := range o.runners {
		name := r.Config().Name

		pnl, settled, err := r.ApplyOutcome(outcome)
		if err != nil {
			o.logger.Error("outcome not applied",
				zap.String("config", name), zap.String("event", outcome.EventID), zap.Error(err))
			continue
		}

		win := settled && pnl.GreaterThan(decimal.Zero)
		if err := o.history.SaveOutcome(history.OutcomeRecord{
			Config:  name,
			EventID: outcome.EventID,
			Outcome: outcome,
			Traded:  settled,
			Win:     win,
			PnL:     pnl,
		}); err != nil {
			o.logger.Error("outcome record failed",
				zap.String("config", name), zap.Error(err))
		}

		if settled && !outcome.Void() {
			if err := o.perf.RecordOutcome(name, win, pnl); err != nil {
				o.logger.Error("performance record failed",
					zap.String("config", name), zap.Error(err))
			}
		}
	}
}

// Live returns the currently live config name.
func (o *Orchestrator) Live() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.live
}

// Allocation returns the live config's allocation fraction.
func (o *Orchestrator) Allocation() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.allocation
}

// PromoteLive switches the live config and sets its starting allocation.
func (o *Orchestrator) PromoteLive(name string, allocation float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.byName[name]; !ok {
		return errors.Errorf("unknown config %q", name)
	}
	if allocation <= 0 || allocation > 1 {
		return errors.Errorf("allocation must be within (0,1], got %f", allocation)
	}

	prev := o.live
	o.live = name
	o.allocation = allocation
	o.logger.Info("live config switched",
		zap.String("from", prev), zap.String("to", name), zap.Float64("allocation", allocation))
	return nil
}

// SetAllocation adjusts the live allocation fraction.
func (o *Orchestrator) SetAllocation(allocation float64) error {
	if allocation <= 0 || allocation > 1 {
		return errors.Errorf("allocation must be within (0,1], got %f", allocation)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.allocation = allocation
	return nil
}

// Runner returns the runner for a config name.
func (o *Orchestrator) Runner(name string) (*Runner, bool) {
	r, ok := o.byName[name]
	return r, ok
}

// LiveRunner returns the live runner.
func (o *Orchestrator) LiveRunner() *Runner {
	o.mu.Lock()
	name := o.live
	o.mu.Unlock()
	return o.byName[name]
}

// Leaderboard returns per-config performance sorted by risk-adjusted return,
// then win rate.
func (o *Orchestrator) Leaderboard() []performance.Stats {
	snapshot := o.perf.Snapshot()
	rows := make([]performance.Stats, 0, len(o.runners))
	for _, r := range o.runners {
		name := r.Config().Name
		if stats, ok := snapshot[name]; ok {
			rows = append(rows, stats)
			continue
		}
		rows = append(rows, performance.Stats{Config: name})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RiskAdjusted() != rows[j].RiskAdjusted() {
			return rows[i].RiskAdjusted() > rows[j].RiskAdjusted()
		}
		if rows[i].WinRate() != rows[j].WinRate() {
			return rows[i].WinRate() > rows[j].WinRate()
		}
		return rows[i].Config < rows[j].Config
	})
	return rows
}

// Accounts returns a copy of every runner's account state keyed by config.
func (o *Orchestrator) Accounts() map[string]domain.AccountState {
	out := make(map[string]domain.AccountState, len(o.runners))
	for _, r := range o.runners {
		out[r.Config().Name] = r.Account()
	}
	return out
}
