// Package strategy turns a valuation snapshot and a ledger into a trade signal
// with a step-by-step decision log.
package strategy

import (
	"time"

	"ValuationSentinel/internal/model"
)

// ladder is evaluated in order; the first gate that decides wins.
var ladder = []gate{insufficientHistory, cooldown, summarize, sell, buy}

// Evaluate runs the decision ladder. It never fails: missing data resolves to
// InsufficientHistory and every branch taken adds a log line.
func Evaluate(snap model.Snapshot, holding model.Holding, history []model.Transaction, params model.StrategyParams, today time.Time) model.Decision {
	e := &evaluation{
		snap:    snap,
		holding: holding,
		history: history,
		params:  params,
		today:   today,
	}
	for _, g := range ladder {
		if g(e) {
			break
		}
	}
	return e.decision
}
