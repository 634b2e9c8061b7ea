package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"ValuationSentinel/internal/apperrors"
	"ValuationSentinel/internal/model"
	"ValuationSentinel/internal/valuation"
)

// legacyTransaction accepts every record shape the ledger file has had:
// localized type names, "portions" instead of "unit", missing ids.
type legacyTransaction struct {
	ID       int64    `json:"id"`
	Date     string   `json:"date"`
	Type     string   `json:"type"`
	Unit     *float64 `json:"unit"`
	Portions *float64 `json:"portions"`
	Price    float64  `json:"price"`
	PE       *float64 `json:"pe"`
	Close    *float64 `json:"close"`
	Fund     string   `json:"fund_identifier"`
}

type legacyLedger struct {
	SchemaVersion int                 `json:"schema_version"`
	NextID        int64               `json:"next_id"`
	History       []legacyTransaction `json:"history"`
	// Holdings was a bare unit count before version 2; it is always recomputed.
	Holdings json.RawMessage `json:"holdings"`
}

// Migrate decodes one persisted ledger in any known schema and returns it in the
// current one. The bool reports whether anything had to be converted.
func Migrate(code string, data []byte) (*model.IndexLedger, bool, error) {
	var raw legacyLedger
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("%s: %w: %w", code, apperrors.ErrCorruptState, err)
	}

	migrated := raw.SchemaVersion != model.LedgerSchemaVersion
	l := &model.IndexLedger{
		Code:          code,
		SchemaVersion: model.LedgerSchemaVersion,
		History:       make([]model.Transaction, 0, len(raw.History)),
	}

	var maxID int64
	seen := make(map[int64]bool, len(raw.History))
	for _, r := range raw.History {
		if r.ID > 0 && !seen[r.ID] {
			seen[r.ID] = true
			if r.ID > maxID {
				maxID = r.ID
			}
		}
	}
	nextID := maxID + 1
	if raw.NextID > nextID {
		nextID = raw.NextID
	}

	assigned := make(map[int64]bool, len(raw.History))
	for i, r := range raw.History {
		typ, ok := parseType(r.Type)
		if !ok {
			return nil, false, fmt.Errorf("%s: entry %d: type %q: %w", code, i, r.Type, apperrors.ErrCorruptState)
		}
		if string(typ) != r.Type {
			migrated = true
		}
		date, ok := valuation.ParseDate(r.Date)
		if !ok {
			return nil, false, fmt.Errorf("%s: entry %d: date %q: %w", code, i, r.Date, apperrors.ErrCorruptState)
		}

		unit := 1.0
		switch {
		case r.Unit != nil:
			unit = *r.Unit
		case r.Portions != nil:
			unit = *r.Portions
			migrated = true
		default:
			migrated = true
		}

		id := r.ID
		if id <= 0 || assigned[id] {
			id = nextID
			nextID++
			migrated = true
		}
		assigned[id] = true

		tx := model.Transaction{
			ID:    id,
			Date:  date,
			Type:  typ,
			Unit:  unit,
			Price: r.Price,
			PE:    r.PE,
			Close: r.Close,
			Fund:  r.Fund,
		}
		if err := Validate(tx); err != nil {
			return nil, false, fmt.Errorf("%s: entry %d: %w: %w", code, i, apperrors.ErrCorruptState, err)
		}
		l.History = append(l.History, tx)
	}
	l.NextID = nextID
	l.Holdings = Recompute(l.History)
	return l, migrated, nil
}

func parseType(s string) (model.TxType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "买入":
		return model.Buy, true
	case "sell", "卖出":
		return model.Sell, true
	}
	return "", false
}
