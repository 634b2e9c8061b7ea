package calculator

import (
	"math"
	"time"
)

// Extreme is a deviation peak and the day it happened.
type Extreme struct {
	Value float64
	Date  time.Time
	OK    bool
}

// DeviationPct returns (value-base)/base*100, NaN when base is not usable.
func DeviationPct(value, base float64) float64 {
	if base == 0 || math.IsNaN(base) || math.IsNaN(value) {
		return math.NaN()
	}
	return (value - base) / base * 100
}

// DeviationSeries computes the percentage deviation of values from their baselines point-wise.
func DeviationSeries(values, bases []float64) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = DeviationPct(values[i], bases[i])
	}
	return out
}

// DeviationExtremes scans a deviation series for its highest and lowest points.
// NaN entries are skipped; ties resolve to the latest date.
func DeviationExtremes(dates []time.Time, devs []float64) (high, low Extreme) {
	for i, d := range devs {
		if math.IsNaN(d) {
			continue
		}
		if !high.OK || d >= high.Value {
			high = Extreme{Value: d, Date: dates[i], OK: true}
		}
		if !low.OK || d <= low.Value {
			low = Extreme{Value: d, Date: dates[i], OK: true}
		}
	}
	return high, low
}
