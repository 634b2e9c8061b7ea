package calculator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 250

// CalculateReturns converts a price path into simple period returns.
// Non-positive or NaN prices break the chain and are skipped.
func CalculateReturns(prices []float64) []float64 {
	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	return returns
}

// AnnualizedVolatility returns the annualized standard deviation (in percent) of the
// last period returns of the price path. Requires at least period+1 prices.
func AnnualizedVolatility(prices []float64, period int) (float64, bool) {
	if period < 2 || len(prices) < period+1 {
		return math.NaN(), false
	}
	returns := CalculateReturns(prices[len(prices)-period-1:])
	if len(returns) < 2 {
		return math.NaN(), false
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear) * 100, true
}
