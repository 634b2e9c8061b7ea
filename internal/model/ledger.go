package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the on-disk date format of ledger records.
const DateLayout = "2006-01-02"

// LedgerSchemaVersion is the current ledger record schema.
const LedgerSchemaVersion = 2

// TxType is the side of a transaction.
type TxType string

const (
	Buy  TxType = "buy"
	Sell TxType = "sell"
)

// Label returns the user-facing name of the side.
func (t TxType) Label() string {
	switch t {
	case Buy:
		return "买入"
	case Sell:
		return "卖出"
	default:
		return string(t)
	}
}

// Transaction is one buy or sell of a tracked fund.
// PE and Close are the valuation values on Date; nil means not known yet.
type Transaction struct {
	ID    int64
	Date  time.Time
	Type  TxType
	Unit  float64
	Price float64
	PE    *float64
	Close *float64
	Fund  string
}

type transactionJSON struct {
	ID    int64    `json:"id"`
	Date  string   `json:"date"`
	Type  TxType   `json:"type"`
	Unit  float64  `json:"unit"`
	Price float64  `json:"price"`
	PE    *float64 `json:"pe"`
	Close *float64 `json:"close"`
	Fund  string   `json:"fund_identifier"`
}

// MarshalJSON writes the date as an ISO 8601 calendar date.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		ID:    t.ID,
		Date:  t.Date.Format(DateLayout),
		Type:  t.Type,
		Unit:  t.Unit,
		Price: t.Price,
		PE:    t.PE,
		Close: t.Close,
		Fund:  t.Fund,
	})
}

// UnmarshalJSON reads the current schema. Legacy records go through ledger.Migrate.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d, err := time.Parse(DateLayout, raw.Date)
	if err != nil {
		return fmt.Errorf("transaction %d: parse date %q: %w", raw.ID, raw.Date, err)
	}
	*t = Transaction{
		ID:    raw.ID,
		Date:  d,
		Type:  raw.Type,
		Unit:  raw.Unit,
		Price: raw.Price,
		PE:    raw.PE,
		Close: raw.Close,
		Fund:  raw.Fund,
	}
	return nil
}

// Holding is derived from the transaction history, never stored as source of truth.
type Holding struct {
	UnitsHeld float64 `json:"units_held"`
	TotalCost float64 `json:"total_cost"`
}

// AvgCost returns the weighted-average cost per unit, or false when nothing is held.
func (h Holding) AvgCost() (float64, bool) {
	if h.UnitsHeld <= 0 {
		return 0, false
	}
	return h.TotalCost / h.UnitsHeld, true
}

// IndexLedger is the durable per-index state.
type IndexLedger struct {
	Code          string        `json:"-"`
	SchemaVersion int           `json:"schema_version"`
	NextID        int64         `json:"next_id"`
	Holdings      Holding       `json:"holdings"`
	History       []Transaction `json:"history"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (l *IndexLedger) Clone() *IndexLedger {
	if l == nil {
		return nil
	}
	c := *l
	c.History = make([]Transaction, len(l.History))
	for i, tx := range l.History {
		c.History[i] = tx.clone()
	}
	return &c
}

func (t Transaction) clone() Transaction {
	c := t
	if t.PE != nil {
		v := *t.PE
		c.PE = &v
	}
	if t.Close != nil {
		v := *t.Close
		c.Close = &v
	}
	return c
}

// Last returns the most recent transaction in list order.
func (l *IndexLedger) Last() (Transaction, bool) {
	if l == nil || len(l.History) == 0 {
		return Transaction{}, false
	}
	return l.History[len(l.History)-1], true
}

// Float returns a pointer to v, for the optional transaction fields.
func Float(v float64) *float64 {
	return &v
}
