package calculator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func dailyDates(start string, n int) []time.Time {
	first := day(start)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = first.AddDate(0, 0, i)
	}
	return out
}

func TestTrailingMeans_ExcludesCurrentPoint(t *testing.T) {
	dates := []time.Time{day("2020-01-01"), day("2020-01-02"), day("2020-01-03"), day("2020-01-04")}
	values := []float64{10, 20, 30, 40}

	means := TrailingMeans(dates, values, 48*time.Hour)

	assert.True(t, math.IsNaN(means[0]), "first point has no history")
	assert.True(t, math.IsNaN(means[1]), "series has not covered a full window yet")
	assert.InDelta(t, 15.0, means[2], 1e-9) // [01-01, 01-03) -> 10, 20
	assert.InDelta(t, 25.0, means[3], 1e-9) // [01-02, 01-04) -> 20, 30
}

func TestTrailingMeans_InsufficientHistoryGate(t *testing.T) {
	dates := dailyDates("2022-01-01", 1200)
	values := make([]float64, len(dates))
	for i := range values {
		values[i] = 10 + float64(i%7)
	}

	means := TrailingMeans(dates, values, YearsWindow(3))

	for i, d := range dates {
		if d.Before(day("2025-01-01")) {
			require.Truef(t, math.IsNaN(means[i]), "expected NaN on %s", d.Format("2006-01-02"))
		} else {
			require.Falsef(t, math.IsNaN(means[i]), "expected a mean on %s", d.Format("2006-01-02"))
		}
	}
}

func TestTrailingMeans_EmptyWindowAfterGap(t *testing.T) {
	dates := []time.Time{day("2020-01-01"), day("2020-01-10")}
	means := TrailingMeans(dates, []float64{1, 2}, 48*time.Hour)
	assert.True(t, math.IsNaN(means[1]))
}

func TestCalculateSMA(t *testing.T) {
	v, ok := CalculateSMA([]float64{1, 2, 3, 4}, 2)
	require.True(t, ok)
	assert.InDelta(t, 3.5, v, 1e-9)

	_, ok = CalculateSMA([]float64{1}, 2)
	assert.False(t, ok)
}

func TestDeviationExtremes(t *testing.T) {
	dates := []time.Time{day("2020-01-01"), day("2020-01-02"), day("2020-01-03"), day("2020-01-04")}
	devs := DeviationSeries([]float64{12, 8, 12, 10}, []float64{10, 10, 10, math.NaN()})

	high, low := DeviationExtremes(dates, devs)

	require.True(t, high.OK)
	require.True(t, low.OK)
	assert.InDelta(t, 20.0, high.Value, 1e-9)
	assert.Equal(t, day("2020-01-03"), high.Date, "ties resolve to the latest date")
	assert.InDelta(t, -20.0, low.Value, 1e-9)
	assert.Equal(t, day("2020-01-02"), low.Date)
}

func TestDeviationExtremes_AllNaN(t *testing.T) {
	high, low := DeviationExtremes([]time.Time{day("2020-01-01")}, []float64{math.NaN()})
	assert.False(t, high.OK)
	assert.False(t, low.OK)
}

func TestAnnualizedVolatility(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100}
	v, ok := AnnualizedVolatility(flat, 4)
	require.True(t, ok)
	assert.InDelta(t, 0.0, v, 1e-9)

	_, ok = AnnualizedVolatility([]float64{100, 101}, 4)
	assert.False(t, ok)

	moving := []float64{100, 102, 99, 103, 101}
	v, ok = AnnualizedVolatility(moving, 4)
	require.True(t, ok)
	assert.Greater(t, v, 0.0)
}

func TestTotalReturnAndCAGR(t *testing.T) {
	assert.InDelta(t, 0.5, TotalReturn(100, 150), 1e-12)
	assert.True(t, math.IsNaN(TotalReturn(0, 150)))

	assert.InDelta(t, 0.1, CAGR(1, 1.21, 2*YearDays), 1e-12)
	assert.InDelta(t, -0.5, CAGR(2, 1, YearDays), 1e-12)
	assert.True(t, math.IsNaN(CAGR(1, 2, 0)))
	assert.True(t, math.IsNaN(CAGR(0, 2, 10)))
}

func TestRebase(t *testing.T) {
	in := []float64{50, 100, 25}
	assert.InDeltaSlice(t, []float64{1, 2, 0.5}, Rebase(in), 1e-12)
	assert.Equal(t, []float64{50, 100, 25}, in, "input untouched")
	assert.Nil(t, Rebase(nil))
	assert.Nil(t, Rebase([]float64{0, 1}))
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"rising", []float64{1, 2, 3}, 0},
		{"deepest of two falls", []float64{100, 80, 120, 60, 130}, -0.5},
		{"gaps skipped", []float64{100, math.NaN(), 0, 75}, -0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.values), 1e-12)
		})
	}
}

func TestPercentileRanks(t *testing.T) {
	ranks := PercentileRanks([]float64{3, 1, 2, 2, math.NaN(), 5}, 3, 2)

	assert.True(t, math.IsNaN(ranks[0]), "below min periods")
	assert.InDelta(t, 0.5, ranks[1], 1e-12)   // {3, 1}: lowest of two
	assert.InDelta(t, 2.0/3, ranks[2], 1e-12) // {3, 1, 2}
	assert.InDelta(t, 2.5/3, ranks[3], 1e-12) // {1, 2, 2}: tie shares rank 2.5
	assert.True(t, math.IsNaN(ranks[4]))
	assert.InDelta(t, 1, ranks[5], 1e-12) // {2, NaN, 5}: two values, highest
}
