// Package performance aggregates resolved-trade results per strategy config.
// The promoter and the leaderboard read consistent snapshots instead of
// locking the trading path.
package performance

import (
	"encoding/json"
	"math"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/pkg/atomicfile"
)

// Stats is the trailing performance of one config over its resolved trades.
type Stats struct {
	Config   string  `json:"config"`
	Resolved int     `json:"resolved"`
	Wins     int     `json:"wins"`
	PnLSum   float64 `json:"pnl_sum"`
	PnLSqSum float64 `json:"pnl_sq_sum"`
}

// WinRate is the fraction of resolved trades won.
func (s Stats) WinRate() float64 {
	if s.Resolved == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Resolved)
}

// RiskAdjusted is a Sharpe-like score: mean pnl over pnl standard deviation.
// Returns 0 when fewer than two samples or no variance exist.
func (s Stats) RiskAdjusted() float64 {
	if s.Resolved < 2 {
		return 0
	}
	n := float64(s.Resolved)
	mean := s.PnLSum / n
	variance := s.PnLSqSum/n - mean*mean
	if variance <= 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// Tracker keeps per-config stats in memory and snapshots them to disk after
// every mutation.
type Tracker struct {
	mu   sync.RWMutex
	rows map[string]*Stats
	path string
}

// NewTracker loads the persisted snapshot at path, if any.
func NewTracker(path string) (*Tracker, error) {
	t := &Tracker{rows: make(map[string]*Stats), path: path}
	if path == "" {
		return t, nil
	}

	data, err := atomicfile.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, errors.Wrap(err, "read performance snapshot")
	}

	var rows map[string]*Stats
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrap(err, "decode performance snapshot")
	}
	if rows != nil {
		t.rows = rows
	}
	return t, nil
}

// RecordOutcome folds one resolved trade into the config's stats.
func (t *Tracker) RecordOutcome(config string, win bool, pnl decimal.Decimal) error {
	if config == "" {
		return errors.New("config name is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[config]
	if !ok {
		row = &Stats{Config: config}
		t.rows[config] = row
	}

	row.Resolved++
	if win {
		row.Wins++
	}
	p, _ := pnl.Float64()
	row.PnLSum += p
	row.PnLSqSum += p * p

	return t.persistLocked()
}

func (t *Tracker) persistLocked() error {
	if t.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.rows, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal performance snapshot")
	}
	return errors.Wrap(atomicfile.Write(t.path, data), "persist performance snapshot")
}

// Get returns the stats for one config.
func (t *Tracker) Get(config string) (Stats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	row, ok := t.rows[config]
	if !ok {
		return Stats{}, false
	}
	return *row, true
}

// Snapshot returns a consistent copy of all rows.
func (t *Tracker) Snapshot() map[string]Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Stats, len(t.rows))
	for name, row := range t.rows {
		out[name] = *row
	}
	return out
}
