package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ValuationSentinel/internal/apperrors"
	"ValuationSentinel/internal/model"
)

// State is the full persisted ledger set keyed by index code.
type State map[string]*model.IndexLedger

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for code, l := range s {
		out[code] = l.Clone()
	}
	return out
}

// LoadState reads the ledger file. A missing file yields empty ledgers for every
// code; ledgers of codes no longer configured are kept. The bool reports whether
// any record needed migration and the file should be rewritten.
func LoadState(filePath string, codes []string) (State, bool, error) {
	state := make(State, len(codes))
	migrated := false

	data, err := os.ReadFile(filePath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, false, err
	case len(data) > 0:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, false, fmt.Errorf("%s: %w: %w", filePath, apperrors.ErrCorruptState, err)
		}
		for key, msg := range raw {
			// legacy files were keyed by data file name
			code := strings.TrimSuffix(key, ".csv")
			if _, dup := raw[code]; dup && code != key {
				code = key
			}
			l, m, err := Migrate(code, msg)
			if err != nil {
				return nil, false, err
			}
			state[code] = l
			migrated = migrated || m || code != key
		}
	}

	for _, code := range codes {
		if _, ok := state[code]; !ok {
			state[code] = &model.IndexLedger{
				Code:          code,
				SchemaVersion: model.LedgerSchemaVersion,
				NextID:        1,
				History:       []model.Transaction{},
			}
		}
	}
	return state, migrated, nil
}

// SaveState writes the state atomically: a temp file in the same directory is
// synced and then renamed over the target.
func SaveState(filePath string, state State) error {
	for _, l := range state {
		if l.History == nil {
			l.History = []model.Transaction{}
		}
		l.Holdings = Recompute(l.History)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
