// Package history persists the full decision and outcome trail in a WAL,
// keyed by (config, event) so tick replays can be detected and skipped.
package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/verdict/internal/domain"
)

const (
	segmentThreshold = 1000
	maxSegments      = 100

	decisionKeyPrefix = "decision_"
	outcomeKeyPrefix  = "outcome_"
)

// DecisionRecord is one recorded decision for a (config, event) pair.
type DecisionRecord struct {
	Index      uint64               `json:"-"`
	Config     string               `json:"config"`
	EventID    string               `json:"event_id"`
	Decision   domain.TradeDecision `json:"decision"`
	RecordedAt time.Time            `json:"recorded_at"`
}

// OutcomeRecord is the resolution bookkeeping for a recorded decision.
type OutcomeRecord struct {
	Index   uint64              `json:"-"`
	Config  string              `json:"config"`
	EventID string              `json:"event_id"`
	Outcome domain.EventOutcome `json:"outcome"`
	Traded  bool                `json:"traded"`
	Win     bool                `json:"win"`
	PnL     decimal.Decimal     `json:"pnl"`
}

// WALStore records decisions and outcomes in an append-only WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the history WAL in dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		return nil, errors.New("history WAL dir is required")
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "history_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init history WAL")
	}

	return &WALStore{wal: wal}, nil
}

func pairKey(prefix, config, eventID string) string {
	return fmt.Sprintf("%s%s|%s", prefix, config, eventID)
}

// SaveDecision appends the decision record.
func (s *WALStore) SaveDecision(rec DecisionRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("history store is not initialized")
	}
	if rec.Config == "" || rec.EventID == "" {
		return errors.New("decision record requires config and event id")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal decision record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, pairKey(decisionKeyPrefix, rec.Config, rec.EventID), payload)
}

// SaveOutcome appends the outcome record.
func (s *WALStore) SaveOutcome(rec OutcomeRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("history store is not initialized")
	}
	if rec.Config == "" || rec.EventID == "" {
		return errors.New("outcome record requires config and event id")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal outcome record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, pairKey(outcomeKeyPrefix, rec.Config, rec.EventID), payload)
}

// DecidedPairs returns the set of "config|event" keys that already carry a
// recorded decision. Loaded once at startup to make tick replays idempotent.
func (s *WALStore) DecidedPairs() (map[string]struct{}, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("history store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for msg := range s.wal.Iterator() {
		if strings.HasPrefix(msg.Key, decisionKeyPrefix) {
			seen[strings.TrimPrefix(msg.Key, decisionKeyPrefix)] = struct{}{}
		}
	}
	return seen, nil
}

// DecisionsAfter returns decision records written after the given WAL index,
// for streaming consumers.
func (s *WALStore) DecisionsAfter(index uint64) ([]DecisionRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("history store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]DecisionRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, decisionKeyPrefix) {
			continue
		}

		var rec DecisionRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, errors.Wrap(err, "decode decision record")
		}
		rec.Index = idx
		records = append(records, rec)
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("history store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
