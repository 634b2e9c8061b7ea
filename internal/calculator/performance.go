package calculator

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// TotalReturn returns end/start - 1, NaN when start is not positive.
func TotalReturn(start, end float64) float64 {
	if !(start > 0) || math.IsNaN(end) {
		return math.NaN()
	}
	return end/start - 1
}

// CAGR returns the compound annual growth rate from start to end over days
// calendar days.
func CAGR(start, end, days float64) float64 {
	if !(days > 0) || !(start > 0) || !(end >= 0) {
		return math.NaN()
	}
	return math.Pow(end/start, YearDays/days) - 1
}

// Rebase divides the path by its first value so it starts at 1.
// It returns nil when the first value is not positive.
func Rebase(values []float64) []float64 {
	if len(values) == 0 || !(values[0] > 0) {
		return nil
	}
	out := make([]float64, len(values))
	copy(out, values)
	floats.Scale(1/values[0], out)
	return out
}

// MaxDrawdown returns the deepest fall from a running peak as a non-positive
// fraction. Non-positive and NaN values are ignored; an empty path yields 0.
func MaxDrawdown(values []float64) float64 {
	drawdowns := make([]float64, 0, len(values))
	peak := math.Inf(-1)
	for _, v := range values {
		if !(v > 0) {
			continue
		}
		peak = math.Max(peak, v)
		drawdowns = append(drawdowns, v/peak-1)
	}
	if len(drawdowns) == 0 {
		return 0
	}
	return floats.Min(drawdowns)
}

// PercentileRanks returns, for every point, the rank of its value among the last
// window values (itself included) as a fraction in (0, 1]. Ties share their
// average rank. Points with fewer than minPeriods values in the window are NaN.
func PercentileRanks(values []float64, window, minPeriods int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.NaN()
		if math.IsNaN(v) {
			continue
		}
		lo := max(0, i-window+1)
		var n, below, equal int
		for _, w := range values[lo : i+1] {
			switch {
			case math.IsNaN(w):
				continue
			case w < v:
				below++
			case w == v:
				equal++
			}
			n++
		}
		if n < max(minPeriods, 1) {
			continue
		}
		out[i] = (float64(below) + float64(equal+1)/2) / float64(n)
	}
	return out
}
