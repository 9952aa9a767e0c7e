// Package promoter compares shadow configs against the live one on a slow
// cadence and stages promotions. A challenger earns live allocation in steps
// and is rolled back to the previous live config if it stops outperforming.
package promoter

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/verdict/internal/storage/performance"
	"github.com/vadiminshakov/verdict/pkg/atomicfile"
	"go.uber.org/zap"
)

// controller is the slice of the orchestrator the promoter drives.
type controller interface {
	Live() string
	PromoteLive(name string, allocation float64) error
	SetAllocation(allocation float64) error
	Leaderboard() []performance.Stats
}

// Config tunes the promotion rules.
type Config struct {
	// Interval between evaluations.
	Interval time.Duration `yaml:"interval"`
	// MinSample is the resolved-trade count a challenger needs before it is
	// even considered, regardless of its win rate.
	MinSample int `yaml:"min_sample"`
	// WinRateMargin and RiskAdjMargin are the outperformance a challenger
	// must show over the live config to start a promotion.
	WinRateMargin float64 `yaml:"win_rate_margin"`
	RiskAdjMargin float64 `yaml:"risk_adj_margin"`
	// RollbackFloor rolls a staged promotion back once the candidate's win
	// rate falls this far below the previous live config's.
	RollbackFloor float64 `yaml:"rollback_floor"`
	// Steps is the staged allocation ladder.
	Steps []float64 `yaml:"steps"`
	// StatePath persists the in-flight promotion across restarts.
	StatePath string `yaml:"state_path"`
}

// DefaultConfig returns the stock promotion rules.
func DefaultConfig(statePath string) Config {
	return Config{
		Interval:      24 * time.Hour,
		MinSample:     100,
		WinRateMargin: 0.05,
		RiskAdjMargin: 0.10,
		RollbackFloor: 0.05,
		Steps:         []float64{0.25, 0.5, 1.0},
		StatePath:     statePath,
	}
}

// state is the in-flight promotion, empty when no promotion is staged.
type state struct {
	Candidate    string    `json:"candidate"`
	PreviousLive string    `json:"previous_live"`
	Step         int       `json:"step"`
	StartedAt    time.Time `json:"started_at"`
}

func (s state) inFlight() bool { return s.Candidate != "" }

// Promoter runs the staged promotion state machine.
type Promoter struct {
	cfg    Config
	ctrl   controller
	st     state
	logger *zap.Logger
}

// New loads any persisted in-flight promotion and returns the promoter.
func New(cfg Config, ctrl controller, logger *zap.Logger) (*Promoter, error) {
	if ctrl == nil {
		return nil, errors.New("promoter requires a controller")
	}
	if len(cfg.Steps) == 0 {
		return nil, errors.New("promoter requires at least one allocation step")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Promoter{cfg: cfg, ctrl: ctrl, logger: logger}
	if cfg.StatePath != "" {
		data, err := atomicfile.Read(cfg.StatePath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &p.st); err != nil {
				return nil, errors.Wrap(err, "decode promoter state")
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrap(err, "read promoter state")
		}
	}
	return p, nil
}

// Run evaluates on the configured cadence until the context is cancelled.
func (p *Promoter) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Evaluate(); err != nil {
				p.logger.Error("promotion evaluation failed", zap.Error(err))
			}
		}
	}
}

// Evaluate runs one promotion round against a consistent performance
// snapshot.
func (p *Promoter) Evaluate() error {
	rows := p.ctrl.Leaderboard()
	byName := make(map[string]performance.Stats, len(rows))
	for _, row := range rows {
		byName[row.Config] = row
	}

	if p.st.inFlight() {
		return p.advanceStaged(byName)
	}
	return p.considerChallenger(byName)
}

// considerChallenger starts a staged promotion for the best eligible shadow
// config, if any outperforms the live one by the configured margins.
func (p *Promoter) considerChallenger(byName map[string]performance.Stats) error {
	live := p.ctrl.Live()
	liveStats := byName[live]

	var best performance.Stats
	found := false
	for name, stats := range byName {
		if name == live {
			continue
		}
		// the minimum sample gate applies before any performance comparison
		if stats.Resolved < p.cfg.MinSample {
			continue
		}
		if stats.WinRate() < liveStats.WinRate()+p.cfg.WinRateMargin {
			continue
		}
		if stats.RiskAdjusted() < liveStats.RiskAdjusted()+p.cfg.RiskAdjMargin {
			continue
		}
		if !found || stats.RiskAdjusted() > best.RiskAdjusted() {
			best, found = stats, true
		}
	}
	if !found {
		return nil
	}

	first := p.cfg.Steps[0]
	if err := p.ctrl.PromoteLive(best.Config, first); err != nil {
		return errors.Wrap(err, "promote challenger")
	}

	p.st = state{
		Candidate:    best.Config,
		PreviousLive: live,
		Step:         0,
		StartedAt:    time.Now().UTC(),
	}
	p.logger.Info("staged promotion started",
		zap.String("candidate", best.Config),
		zap.String("previous", live),
		zap.Float64("allocation", first))
	return p.persist()
}

// advanceStaged moves an in-flight promotion one step up, or rolls it back
// when the candidate's performance degrades below the floor.
func (p *Promoter) advanceStaged(byName map[string]performance.Stats) error {
	candidate := byName[p.st.Candidate]
	previous := byName[p.st.PreviousLive]

	if candidate.WinRate()+p.cfg.RollbackFloor < previous.WinRate() {
		p.logger.Warn("staged promotion rolled back",
			zap.String("candidate", p.st.Candidate),
			zap.String("restored", p.st.PreviousLive),
			zap.Float64("candidate_win_rate", candidate.WinRate()),
			zap.Float64("previous_win_rate", previous.WinRate()))
		if err := p.ctrl.PromoteLive(p.st.PreviousLive, 1.0); err != nil {
			return errors.Wrap(err, "rollback promotion")
		}
		p.st = state{}
		return p.persist()
	}

	// the candidate must still be ahead to climb; holding the current
	// allocation is not a failure
	if candidate.WinRate() < previous.WinRate() || candidate.RiskAdjusted() < previous.RiskAdjusted() {
		return nil
	}

	next := p.st.Step + 1
	if next >= len(p.cfg.Steps) {
		p.logger.Info("staged promotion complete", zap.String("live", p.st.Candidate))
		p.st = state{}
		return p.persist()
	}

	if err := p.ctrl.SetAllocation(p.cfg.Steps[next]); err != nil {
		return errors.Wrap(err, "raise allocation")
	}
	p.st.Step = next
	p.logger.Info("staged promotion advanced",
		zap.String("candidate", p.st.Candidate),
		zap.Float64("allocation", p.cfg.Steps[next]))
	return p.persist()
}

func (p *Promoter) persist() error {
	if p.cfg.StatePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(p.st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal promoter state")
	}
	return errors.Wrap(atomicfile.Write(p.cfg.StatePath, data), "persist promoter state")
}
