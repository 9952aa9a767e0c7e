package engine

import (
	"sync"

	"github.com/vadiminshakov/verdict/internal/domain"
)

const (
	trackerWindow    = 50
	trackerMinSample = 10
	biasThreshold    = 0.70
)

// BalanceTracker watches the rolling directional mix of executed trades.
// It records only trades that actually went out; no-trade decisions carry
// no directional information. A skewed mix produces a warning, never a
// block: the mix may be legitimate in a trending market, so the call is
// left to operators and the promoter.
type BalanceTracker struct {
	mu     sync.Mutex
	window []domain.Direction
}

// NewBalanceTracker creates a tracker over the default rolling window.
func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{window: make([]domain.Direction, 0, trackerWindow)}
}

// Record appends an executed trade direction. It reports whether the window
// is now biased, together with the dominant side and its fraction.
func (t *BalanceTracker) Record(direction domain.Direction) (biased bool, dominant domain.Direction, fraction float64) {
	if !direction.IsDirectional() {
		return false, domain.DirectionNone, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.window) == trackerWindow {
		t.window = append(t.window[:0], t.window[1:]...)
	}
	t.window = append(t.window, direction)

	if len(t.window) < trackerMinSample {
		return false, domain.DirectionNone, 0
	}

	ups := 0
	for _, d := range t.window {
		if d == domain.DirectionUp {
			ups++
		}
	}
	total := len(t.window)
	upFrac := float64(ups) / float64(total)
	switch {
	case upFrac >= biasThreshold:
		return true, domain.DirectionUp, upFrac
	case 1-upFrac >= biasThreshold:
		return true, domain.DirectionDown, 1 - upFrac
	}
	return false, domain.DirectionNone, 0
}
