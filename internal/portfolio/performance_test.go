package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ValuationSentinel/internal/model"
)

func closeSeries(start time.Time, closes ...float64) *model.Series {
	s := &model.Series{Code: "x"}
	for i, c := range closes {
		s.Observations = append(s.Observations, model.Observation{
			Date: start.AddDate(0, 0, i), PE: 10, Percentile: 0.5, Close: c,
			Avg3Y: math.NaN(), Avg5Y: math.NaN(), Avg10Y: math.NaN(),
		})
	}
	return s
}

func TestPeriodStart(t *testing.T) {
	latest := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		period string
		want   time.Time
	}{
		{"", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)},
		{"1y", time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)},
		{"3Y", time.Date(2022, 6, 30, 0, 0, 0, 0, time.UTC)},
		{"5y", time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC)},
		{"ytd", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := PeriodStart(tt.period, latest)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := PeriodStart("2w", latest)
	assert.Error(t, err)
}

func TestMeasure(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := closeSeries(start, 90, 100, 120, 90, 110)
	s.Observations[2].Close = math.NaN()

	p := Measure(model.Index{Code: "x"}, s, start.AddDate(0, 0, 1))
	require.True(t, p.Available)
	assert.Equal(t, start.AddDate(0, 0, 1), p.Start, "closes before the period are ignored")
	assert.Equal(t, start.AddDate(0, 0, 4), p.End)
	assert.InDelta(t, 0.10, p.TotalReturn, 1e-12)
	assert.InDelta(t, -0.10, p.MaxDrawdown, 1e-12)
	assert.InEpsilon(t, math.Pow(1.1, 365.25/3)-1, p.CAGR, 1e-9)

	assert.False(t, Measure(model.Index{}, nil, start).Available)
	assert.False(t, Measure(model.Index{}, s, start.AddDate(0, 0, 4)).Available, "one close is not a path")
}

func TestMeasureAll(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	indices := []model.Index{{Code: "a"}, {Code: "b"}, {Code: "missing"}}
	series := map[string]*model.Series{
		"a": closeSeries(start, 100, 110),
		"b": closeSeries(start, 100, 90, 80),
	}

	perfs, err := MeasureAll(indices, series, "ytd")
	require.NoError(t, err)
	require.Len(t, perfs, 3)
	assert.InDelta(t, 0.1, perfs[0].TotalReturn, 1e-12)
	assert.InDelta(t, -0.2, perfs[1].TotalReturn, 1e-12)
	assert.InDelta(t, -0.2, perfs[1].MaxDrawdown, 1e-12)
	assert.False(t, perfs[2].Available)

	_, err = MeasureAll(indices, series, "forever")
	assert.Error(t, err)
}

func TestBuild_CloseMovingAverage(t *testing.T) {
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = 100
		if i >= 50 {
			closes[i] = 200
		}
	}
	s := closeSeries(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), closes...)

	row := Build(model.Index{Code: "x"}, s, nil, model.DefaultStrategyParams(), today)
	require.True(t, row.Available)
	assert.InDelta(t, 200, row.CloseMA, 1e-9)
	assert.InDelta(t, 0, row.Volatility, 1e-9, "flat over the last year")
}
