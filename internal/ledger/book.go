// Package ledger keeps the per-index transaction history and derives the
// weighted-average cost basis from it.
package ledger

import (
	"fmt"
	"math"

	"ValuationSentinel/internal/apperrors"
	"ValuationSentinel/internal/model"
	"ValuationSentinel/internal/valuation"
)

// epsilon below which a remaining position is treated as fully closed.
const epsilon = 1e-9

// Validate checks the caller-supplied fields of a transaction.
func Validate(tx model.Transaction) error {
	switch {
	case tx.Type != model.Buy && tx.Type != model.Sell:
		return fmt.Errorf("%q: %w", tx.Type, apperrors.ErrInvalidType)
	case tx.Date.IsZero():
		return apperrors.ErrInvalidDate
	case !(tx.Unit > 0) || math.IsInf(tx.Unit, 0):
		return fmt.Errorf("unit %v: %w", tx.Unit, apperrors.ErrInvalidUnit)
	case !(tx.Price > 0) || math.IsInf(tx.Price, 0):
		return fmt.Errorf("price %v: %w", tx.Price, apperrors.ErrInvalidPrice)
	}
	return nil
}

// Recompute replays history in list order through the weighted-average-cost fold.
// A sell from an empty position is a no-op; a sell of more than is held closes
// the position to (0, 0). Entries with a non-positive unit or price are skipped,
// so the result is never negative.
func Recompute(history []model.Transaction) model.Holding {
	var h model.Holding
	for _, tx := range history {
		h = apply(h, tx)
	}
	return h
}

// apply folds one transaction into h.
func apply(h model.Holding, tx model.Transaction) model.Holding {
	if !usable(tx) {
		return h
	}
	units, cost := h.UnitsHeld, h.TotalCost
	switch tx.Type {
	case model.Buy:
		units += tx.Unit
		cost += tx.Price * tx.Unit
	case model.Sell:
		if units <= 0 {
			return h
		}
		avg := cost / units
		units -= tx.Unit
		cost -= avg * tx.Unit
	}
	if units < epsilon {
		return model.Holding{}
	}
	if cost < 0 {
		cost = 0
	}
	return model.Holding{UnitsHeld: units, TotalCost: cost}
}

func usable(tx model.Transaction) bool {
	return tx.Unit > 0 && !math.IsInf(tx.Unit, 0) && tx.Price > 0 && !math.IsInf(tx.Price, 0)
}

// Append validates tx, assigns it the next stable id and appends it to the history.
// Selling more units than held is rejected.
func Append(l *model.IndexLedger, tx model.Transaction) (*model.IndexLedger, error) {
	if err := Validate(tx); err != nil {
		return nil, err
	}
	out := cloneOrNew(l)
	if tx.Type == model.Sell {
		if err := checkSell(Recompute(out.History), tx); err != nil {
			return nil, err
		}
	}
	if out.NextID < 1 {
		out.NextID = 1
	}
	tx.ID = out.NextID
	out.NextID++
	out.History = append(out.History, tx)
	return finish(out), nil
}

// Edit replaces the whole record carrying id. The id is preserved.
func Edit(l *model.IndexLedger, id int64, tx model.Transaction) (*model.IndexLedger, error) {
	pos := Position(l, id)
	if pos < 0 {
		return nil, fmt.Errorf("id %d: %w", id, apperrors.ErrTransactionNotFound)
	}
	return EditAt(l, pos, tx)
}

// EditAt replaces the record at pos in the history. The edit is rejected when the
// edited sell, or a later sell that was covered before the edit, would exceed the
// units held at its turn.
func EditAt(l *model.IndexLedger, pos int, tx model.Transaction) (*model.IndexLedger, error) {
	if l == nil || pos < 0 || pos >= len(l.History) {
		return nil, fmt.Errorf("position %d: %w", pos, apperrors.ErrInvalidPosition)
	}
	if err := Validate(tx); err != nil {
		return nil, err
	}
	before := Recompute(l.History[:pos])
	if tx.Type == model.Sell {
		if err := checkSell(before, tx); err != nil {
			return nil, err
		}
	}
	out := l.Clone()
	tx.ID = out.History[pos].ID
	out.History[pos] = tx
	if checkReplay(l.History[pos:], before) == nil {
		if err := checkReplay(out.History[pos:], before); err != nil {
			return nil, err
		}
	}
	return finish(out), nil
}

// Delete removes the record carrying id.
func Delete(l *model.IndexLedger, id int64) (*model.IndexLedger, error) {
	pos := Position(l, id)
	if pos < 0 {
		return nil, fmt.Errorf("id %d: %w", id, apperrors.ErrTransactionNotFound)
	}
	return DeleteAt(l, pos)
}

// DeleteAt removes the record at pos in the history.
func DeleteAt(l *model.IndexLedger, pos int) (*model.IndexLedger, error) {
	if l == nil || pos < 0 || pos >= len(l.History) {
		return nil, fmt.Errorf("position %d: %w", pos, apperrors.ErrInvalidPosition)
	}
	out := l.Clone()
	out.History = append(out.History[:pos], out.History[pos+1:]...)
	return finish(out), nil
}

// Position returns the list position of id, or -1.
func Position(l *model.IndexLedger, id int64) int {
	if l == nil {
		return -1
	}
	for i, tx := range l.History {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

// Backfill fills unknown PE and Close of history entries from the series and
// reports how many entries changed. Values are rounded to two decimals.
func Backfill(l *model.IndexLedger, s *model.Series) (*model.IndexLedger, int) {
	out := cloneOrNew(l)
	if s.Len() == 0 {
		return out, 0
	}
	n := 0
	for i := range out.History {
		tx := &out.History[i]
		if tx.PE != nil && tx.Close != nil {
			continue
		}
		pe, closing, ok := valuation.Lookup(s, tx.Date)
		if !ok {
			continue
		}
		changed := false
		if tx.PE == nil && model.Available(pe) {
			tx.PE = model.Float(round2(pe))
			changed = true
		}
		if tx.Close == nil && model.Available(closing) {
			tx.Close = model.Float(round2(closing))
			changed = true
		}
		if changed {
			n++
		}
	}
	return finish(out), n
}

// Annotate looks up PE and Close for the trade date when the caller left them unset.
func Annotate(tx model.Transaction, s *model.Series) model.Transaction {
	if s.Len() == 0 || (tx.PE != nil && tx.Close != nil) {
		return tx
	}
	pe, closing, ok := valuation.Lookup(s, tx.Date)
	if !ok {
		return tx
	}
	if tx.PE == nil && model.Available(pe) {
		tx.PE = model.Float(round2(pe))
	}
	if tx.Close == nil && model.Available(closing) {
		tx.Close = model.Float(round2(closing))
	}
	return tx
}

func checkSell(h model.Holding, tx model.Transaction) error {
	if tx.Unit > h.UnitsHeld+epsilon {
		return fmt.Errorf("sell %v with %v held: %w", tx.Unit, h.UnitsHeld, apperrors.ErrOversell)
	}
	return nil
}

// checkReplay folds history starting from h and fails on the first oversell.
func checkReplay(history []model.Transaction, h model.Holding) error {
	for _, tx := range history {
		if tx.Type == model.Sell {
			if err := checkSell(h, tx); err != nil {
				return fmt.Errorf("id %d: %w", tx.ID, err)
			}
		}
		h = apply(h, tx)
	}
	return nil
}

func cloneOrNew(l *model.IndexLedger) *model.IndexLedger {
	if l == nil {
		return &model.IndexLedger{SchemaVersion: model.LedgerSchemaVersion, NextID: 1}
	}
	return l.Clone()
}

func finish(l *model.IndexLedger) *model.IndexLedger {
	l.SchemaVersion = model.LedgerSchemaVersion
	l.Holdings = Recompute(l.History)
	return l
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
