package calculator

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// YearDays is the calendar length of a year used by the rolling windows.
const YearDays = 365.25

// YearsWindow converts a number of years into a window duration.
func YearsWindow(years int) time.Duration {
	return time.Duration(float64(years) * YearDays * float64(24*time.Hour))
}

// TrailingMeans computes, for every point i, the mean of values whose date lies in the
// half-open window [dates[i]-window, dates[i]). The current point is never included.
//
// A point gets NaN when the window is empty or the series has not yet covered a
// full window (dates[i]-dates[0] < window).
//
// dates must be strictly increasing and the same length as values.
func TrailingMeans(dates []time.Time, values []float64, window time.Duration) []float64 {
	out := make([]float64, len(values))
	if len(dates) == 0 {
		return out
	}
	first := dates[0]
	lo := 0
	for i := range values {
		out[i] = math.NaN()
		if dates[i].Sub(first) < window {
			continue
		}
		start := dates[i].Add(-window)
		for lo < i && dates[lo].Before(start) {
			lo++
		}
		if lo >= i {
			continue
		}
		out[i] = stat.Mean(values[lo:i], nil)
	}
	return out
}

// CalculateSMA computes the simple moving average of the last period values.
func CalculateSMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return math.NaN(), false
	}
	return stat.Mean(values[len(values)-period:], nil), true
}
