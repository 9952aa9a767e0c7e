// Package account persists the guardian-owned AccountState. Every write is
// atomic (temp file + fsync + rename) so a crash mid-write never corrupts
// the record.
package account

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/pkg/atomicfile"
)

// Store reads and writes one AccountState record on disk.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store writing to path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("account store path is required")
	}
	return &Store{path: path}, nil
}

// Save writes the state atomically.
func (s *Store) Save(state domain.AccountState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal account state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomicfile.Write(s.path, data); err != nil {
		return errors.Wrap(err, "persist account state")
	}
	return nil
}

// Load reads the persisted state. The second return value is false when no
// record exists yet. A record that fails validation is returned as an error,
// never silently accepted.
func (s *Store) Load() (domain.AccountState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := atomicfile.Read(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.AccountState{}, false, nil
		}
		return domain.AccountState{}, false, errors.Wrap(err, "read account state")
	}

	var state domain.AccountState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.AccountState{}, false, errors.Wrap(err, "decode account state")
	}
	if err := state.Validate(); err != nil {
		return domain.AccountState{}, false, errors.Wrap(err, "persisted account state is invalid")
	}

	return state, true, nil
}
