package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"ValuationSentinel/internal/apperrors"
	"ValuationSentinel/internal/model"
)

// Manager serializes ledger mutations and persists every change.
// The in-memory state is replaced only after the file write succeeded.
type Manager struct {
	mu       sync.Mutex
	state    State
	codes    []string
	filePath string
	log      zerolog.Logger
}

// NewManager loads or initializes the ledger state from disk, rewriting the file
// when legacy records were migrated.
func NewManager(filePath string, codes []string, log zerolog.Logger) (*Manager, error) {
	state, migrated, err := LoadState(filePath, codes)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		state:    state,
		codes:    append([]string(nil), codes...),
		filePath: filePath,
		log:      log.With().Str("component", "ledger").Logger(),
	}
	if migrated {
		if err := SaveState(filePath, state); err != nil {
			return nil, fmt.Errorf("save migrated ledger: %w", err)
		}
		m.log.Info().Str("file", filePath).Int("schema_version", model.LedgerSchemaVersion).Msg("ledger migrated")
	}
	return m, nil
}

// Codes returns the configured index codes followed by any extra codes found on disk.
func (m *Manager) Codes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.codes...)
	known := make(map[string]bool, len(out))
	for _, c := range out {
		known[c] = true
	}
	var extra []string
	for c := range m.state {
		if !known[c] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Ledger returns a copy of the ledger of code.
func (m *Manager) Ledger(code string) (*model.IndexLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.get(code)
	if err != nil {
		return nil, err
	}
	return l.Clone(), nil
}

// Snapshot returns a copy of every ledger.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Append records a new transaction and returns it with its assigned id.
// When s is not nil, unknown PE and Close are looked up for the trade date.
func (m *Manager) Append(code string, tx model.Transaction, s *model.Series) (model.Transaction, error) {
	tx = Annotate(tx, s)
	l, err := m.mutate(code, func(cur *model.IndexLedger) (*model.IndexLedger, error) {
		return Append(cur, tx)
	})
	if err != nil {
		return model.Transaction{}, err
	}
	added, _ := l.Last()
	m.log.Info().
		Str("index", code).
		Int64("id", added.ID).
		Str("type", string(added.Type)).
		Float64("unit", added.Unit).
		Float64("price", added.Price).
		Float64("units_held", l.Holdings.UnitsHeld).
		Msg("transaction recorded")
	return added, nil
}

// Edit replaces the transaction carrying id and returns the stored record.
func (m *Manager) Edit(code string, id int64, tx model.Transaction, s *model.Series) (model.Transaction, error) {
	tx = Annotate(tx, s)
	l, err := m.mutate(code, func(cur *model.IndexLedger) (*model.IndexLedger, error) {
		return Edit(cur, id, tx)
	})
	if err != nil {
		return model.Transaction{}, err
	}
	edited := l.History[Position(l, id)]
	m.log.Info().
		Str("index", code).
		Int64("id", id).
		Float64("unit", edited.Unit).
		Float64("price", edited.Price).
		Float64("units_held", l.Holdings.UnitsHeld).
		Msg("transaction edited")
	return edited, nil
}

// Delete removes the transaction carrying id and returns it.
func (m *Manager) Delete(code string, id int64) (model.Transaction, error) {
	var removed model.Transaction
	_, err := m.mutate(code, func(cur *model.IndexLedger) (*model.IndexLedger, error) {
		if pos := Position(cur, id); pos >= 0 {
			removed = cur.History[pos]
		}
		return Delete(cur, id)
	})
	if err != nil {
		return model.Transaction{}, err
	}
	m.log.Info().Str("index", code).Int64("id", id).Msg("transaction deleted")
	return removed, nil
}

// Backfill fills unknown PE/Close of every ledger that has a series and writes
// the file once. It returns the number of updated records.
func (m *Manager) Backfill(series map[string]*model.Series) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(State, len(m.state))
	total := 0
	for code, l := range m.state {
		s, ok := series[code]
		if !ok {
			next[code] = l
			continue
		}
		filled, n := Backfill(l, s)
		filled.Code = code
		next[code] = filled
		total += n
	}
	if total == 0 {
		return 0, nil
	}
	if err := SaveState(m.filePath, next); err != nil {
		return 0, fmt.Errorf("save ledger: %w", err)
	}
	m.state = next
	m.log.Info().Int("records", total).Msg("ledger backfilled")
	return total, nil
}

func (m *Manager) mutate(code string, fn func(*model.IndexLedger) (*model.IndexLedger, error)) (*model.IndexLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, err := m.get(code)
	if err != nil {
		return nil, err
	}
	l, err := fn(cur)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", code, err)
	}
	l.Code = code

	next := make(State, len(m.state))
	for c, v := range m.state {
		next[c] = v
	}
	next[code] = l
	if err := SaveState(m.filePath, next); err != nil {
		return nil, fmt.Errorf("save ledger: %w", err)
	}
	m.state = next
	return l.Clone(), nil
}

func (m *Manager) get(code string) (*model.IndexLedger, error) {
	if code == "" {
		return nil, apperrors.ErrEmptyIndexCode
	}
	l, ok := m.state[code]
	if !ok {
		return nil, fmt.Errorf("%s: %w", code, apperrors.ErrUnknownIndex)
	}
	return l, nil
}
