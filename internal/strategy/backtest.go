package strategy

import (
	"math"
	"time"

	"ValuationSentinel/internal/calculator"
	"ValuationSentinel/internal/model"
)

// BacktestParams configures a replay of the percentile policy.
type BacktestParams struct {
	BuyPercentile  float64
	SellPercentile float64
	// Amount is invested at every buy, and at every step of the baseline.
	Amount float64
	// Interval is the number of trading days between two checks.
	Interval int
	// SellFraction of the position is sold at every sell.
	SellFraction float64
	// Window and MinPeriods bound the rolling P/E percentile, in trading days.
	Window     int
	MinPeriods int
}

// DefaultBacktestParams returns a monthly check over a five-year rolling percentile.
func DefaultBacktestParams() BacktestParams {
	return BacktestParams{
		BuyPercentile:  0.20,
		SellPercentile: 0.80,
		Amount:         1000,
		Interval:       30,
		SellFraction:   0.5,
		Window:         5 * calculator.TradingDaysPerYear,
		MinPeriods:     calculator.TradingDaysPerYear,
	}
}

// BacktestAction is what the policy did at a check.
type BacktestAction string

const (
	ActionBuy  BacktestAction = "buy"
	ActionSell BacktestAction = "sell"
	ActionHold BacktestAction = "hold"
)

// BacktestPoint is the state of both portfolios after one check.
type BacktestPoint struct {
	Date       time.Time
	Action     BacktestAction
	Percentile float64

	Value    float64
	Invested float64

	BaselineValue    float64
	BaselineInvested float64
}

// BacktestResult compares the policy with buying the same amount at every check.
// Returns are fractions of the invested amount.
type BacktestResult struct {
	Points []BacktestPoint
	Buys   int
	Sells  int

	Return         float64
	BaselineReturn float64
	Excess         float64
}

// Start returns the date of the first check.
func (r BacktestResult) Start() time.Time { return r.Points[0].Date }

// End returns the date of the last check.
func (r BacktestResult) End() time.Time { return r.Points[len(r.Points)-1].Date }

// Final returns the last point.
func (r BacktestResult) Final() BacktestPoint { return r.Points[len(r.Points)-1] }

// Backtest replays the series: every Interval trading days it buys Amount when the
// rolling P/E percentile is at or below BuyPercentile, and sells SellFraction of
// the position when it is at or above SellPercentile. Only the percentile known on
// each day is used. It reports false when the series is shorter than MinPeriods
// or no check had a percentile.
func Backtest(s *model.Series, p BacktestParams) (BacktestResult, bool) {
	var obs []model.Observation
	if s != nil {
		for _, o := range s.Observations {
			if model.Available(o.Close) && o.Close > 0 {
				obs = append(obs, o)
			}
		}
	}
	if len(obs) < p.MinPeriods || p.Interval < 1 || !(p.Amount > 0) {
		return BacktestResult{}, false
	}

	pes := make([]float64, len(obs))
	for i, o := range obs {
		pes[i] = o.PE
	}
	ranks := calculator.PercentileRanks(pes, p.Window, p.MinPeriods)

	var (
		res                    BacktestResult
		shares, cash, invested float64
		baseShares, baseSpent  float64
	)
	for i := 0; i < len(obs); i += p.Interval {
		pct, price := ranks[i], obs[i].Close
		if math.IsNaN(pct) {
			continue
		}

		action := ActionHold
		switch {
		case pct <= p.BuyPercentile:
			shares += p.Amount / price
			invested += p.Amount
			action = ActionBuy
			res.Buys++
		case pct >= p.SellPercentile && shares > 0:
			sold := shares * p.SellFraction
			cash += sold * price
			shares -= sold
			action = ActionSell
			res.Sells++
		}

		baseShares += p.Amount / price
		baseSpent += p.Amount

		res.Points = append(res.Points, BacktestPoint{
			Date:             obs[i].Date,
			Action:           action,
			Percentile:       pct,
			Value:            shares*price + cash,
			Invested:         invested,
			BaselineValue:    baseShares * price,
			BaselineInvested: baseSpent,
		})
	}
	if len(res.Points) == 0 {
		return BacktestResult{}, false
	}

	final := res.Final()
	res.Return = gain(final.Value, final.Invested)
	res.BaselineReturn = gain(final.BaselineValue, final.BaselineInvested)
	res.Excess = res.Return - res.BaselineReturn
	return res, true
}

func gain(value, invested float64) float64 {
	if invested <= 0 {
		return 0
	}
	return (value - invested) / invested
}
