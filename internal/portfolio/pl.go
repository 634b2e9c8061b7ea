// Package portfolio combines a valuation series and a ledger into the per-index
// view: signal, holdings, cost basis and estimated floating P/L.
package portfolio

import (
	"math"

	"ValuationSentinel/internal/model"
)

// EstimatePL estimates the floating P/L of a holding. The fund price is assumed
// to move with the index: the most recent transaction with a known close anchors
// price to index level.
func EstimatePL(h model.Holding, history []model.Transaction, currentClose float64) model.PL {
	nan := math.NaN()
	pl := model.PL{AvgCost: nan, EstimatedPrice: nan, MarketValue: nan, PLPct: nan}

	avg, ok := h.AvgCost()
	if !ok {
		return pl
	}
	pl.AvgCost = avg

	anchor, ok := anchorOf(history)
	if !ok || !model.Available(currentClose) {
		return pl
	}
	pl.EstimatedPrice = anchor.Price * currentClose / *anchor.Close
	pl.MarketValue = pl.EstimatedPrice * h.UnitsHeld
	if h.TotalCost > 0 {
		pl.PLPct = pl.MarketValue/h.TotalCost - 1
	}
	return pl
}

func anchorOf(history []model.Transaction) (model.Transaction, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		tx := history[i]
		if tx.Price > 0 && tx.Close != nil && *tx.Close > 0 && model.Available(*tx.Close) {
			return tx, true
		}
	}
	return model.Transaction{}, false
}
