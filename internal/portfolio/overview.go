package portfolio

import (
	"math"
	"time"

	"ValuationSentinel/internal/calculator"
	"ValuationSentinel/internal/model"
	"ValuationSentinel/internal/strategy"
	"ValuationSentinel/internal/valuation"
)

// VolatilityPeriod is the number of daily returns behind Row.Volatility.
const VolatilityPeriod = calculator.TradingDaysPerYear

// MovingAveragePeriod is the number of closes behind Row.CloseMA.
const MovingAveragePeriod = calculator.TradingDaysPerYear

// Row is the overview of one index.
type Row struct {
	Index     model.Index
	Available bool
	Snapshot  model.Snapshot

	// Deviation is the premium of the current P/E over its 3-year mean, in percent.
	Deviation    float64
	MaxDeviation calculator.Extreme
	MinDeviation calculator.Extreme
	// Volatility is the annualized volatility of the index close, in percent.
	Volatility float64
	// CloseMA is the simple moving average of the last MovingAveragePeriod closes.
	CloseMA float64

	Decision model.Decision
	Holding  model.Holding
	PL       model.PL

	// DaysSinceLastOp is -1 when the ledger is empty.
	DaysSinceLastOp int
	LastOp          *model.Transaction
}

// Build evaluates one index. A nil series yields a DataUnavailable row that still
// carries the holding.
func Build(idx model.Index, s *model.Series, l *model.IndexLedger, params model.StrategyParams, today time.Time) Row {
	var history []model.Transaction
	var holding model.Holding
	if l != nil {
		history = l.History
		holding = l.Holdings
	}

	nan := math.NaN()
	row := Row{
		Index:           idx,
		Deviation:       nan,
		Volatility:      nan,
		CloseMA:         nan,
		Holding:         holding,
		PL:              model.PL{AvgCost: nan, EstimatedPrice: nan, MarketValue: nan, PLPct: nan},
		DaysSinceLastOp: -1,
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		row.LastOp = &last
		row.DaysSinceLastOp = strategy.DaysSince(last.Date, today)
	}

	snap, ok := valuation.Latest(s)
	if !ok {
		row.Decision = model.Decision{
			Signal: model.SignalDataUnavailable,
			Log:    []string{"数据处理失败或文件缺失，无法评估策略。"},
		}
		if avg, held := holding.AvgCost(); held {
			row.PL.AvgCost = avg
		}
		return row
	}
	row.Available = true
	row.Snapshot = snap
	row.Deviation = calculator.DeviationPct(snap.PE, snap.Avg3Y)

	dates := make([]time.Time, s.Len())
	pes := make([]float64, s.Len())
	avgs := make([]float64, s.Len())
	for i, o := range s.Observations {
		dates[i], pes[i], avgs[i] = o.Date, o.PE, o.Avg3Y
	}
	row.MaxDeviation, row.MinDeviation = calculator.DeviationExtremes(dates, calculator.DeviationSeries(pes, avgs))

	closes := valuation.Closes(s)
	if v, ok := calculator.AnnualizedVolatility(closes, VolatilityPeriod); ok {
		row.Volatility = v
	}
	if ma, ok := calculator.CalculateSMA(closes, MovingAveragePeriod); ok {
		row.CloseMA = ma
	}

	row.Decision = strategy.Evaluate(snap, holding, history, params, today)
	row.PL = EstimatePL(holding, history, snap.Close)
	return row
}

// BuildAll evaluates every index in order. Indices without a series get a
// DataUnavailable row.
func BuildAll(indices []model.Index, series map[string]*model.Series, ledgers map[string]*model.IndexLedger, params model.StrategyParams, today time.Time) []Row {
	rows := make([]Row, 0, len(indices))
	for _, idx := range indices {
		rows = append(rows, Build(idx, series[idx.Code], ledgers[idx.Code], params, today))
	}
	return rows
}

// OverallPosition maps the benchmark's P/E percentile to a 0-100 "how cheap is
// the market" gauge. NaN when the percentile is unknown.
func OverallPosition(benchmark model.Snapshot) float64 {
	if !model.Available(benchmark.Percentile) {
		return math.NaN()
	}
	return (1 - benchmark.Percentile) * 100
}
