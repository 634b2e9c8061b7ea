package recorder

import (
	"time"

	"github.com/google/uuid"

	"ValuationSentinel/internal/model"
)

// Evaluation is one index's outcome of an evaluation run.
// NaN metrics are stored as NULL.
type Evaluation struct {
	RunID      string
	Trigger    model.TriggerType
	Code       string
	DataDate   time.Time
	PE         float64
	Percentile float64
	Avg3Y      float64
	Avg5Y      float64
	Deviation  float64
	Signal     model.Signal
	Log        []string
	UnitsHeld  float64
	TotalCost  float64
	PLPct      float64
}

// LedgerAction names what happened to the ledger.
type LedgerAction string

const (
	ActionAppend   LedgerAction = "APPEND"
	ActionEdit     LedgerAction = "EDIT"
	ActionDelete   LedgerAction = "DELETE"
	ActionBackfill LedgerAction = "BACKFILL"
)

// LedgerEvent records a ledger mutation with the holding it produced.
type LedgerEvent struct {
	Code       string
	Action     LedgerAction
	TxID       int64
	Type       model.TxType
	Unit       float64
	Price      float64
	UnitsAfter float64
	CostAfter  float64
	Note       string
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordEvaluation(evt *Evaluation) error
	RecordLedgerEvent(evt *LedgerEvent) error
	// LastSignal returns the most recently recorded signal of code among runs
	// with the given trigger. An empty trigger matches every run.
	LastSignal(code string, trigger model.TriggerType) (model.Signal, bool, error)
	Close() error
}

// NewRunID returns an identifier grouping the rows written by one evaluation run.
func NewRunID() string {
	return uuid.NewString()
}
