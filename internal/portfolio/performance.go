package portfolio

import (
	"fmt"
	"strings"
	"time"

	"ValuationSentinel/internal/calculator"
	"ValuationSentinel/internal/model"
)

// Performance summarizes the close path of one index over a period.
// Returns and drawdown are fractions.
type Performance struct {
	Index     model.Index
	Available bool
	Start     time.Time
	End       time.Time

	TotalReturn float64
	CAGR        float64
	MaxDrawdown float64
}

// PeriodStart resolves a period name ("1y", "3y", "5y", "ytd") against the
// latest data date.
func PeriodStart(period string, latest time.Time) (time.Time, error) {
	switch strings.ToLower(period) {
	case "", "1y":
		return latest.AddDate(-1, 0, 0), nil
	case "3y":
		return latest.AddDate(-3, 0, 0), nil
	case "5y":
		return latest.AddDate(-5, 0, 0), nil
	case "ytd":
		return time.Date(latest.Year(), 1, 1, 0, 0, 0, 0, latest.Location()), nil
	}
	return time.Time{}, fmt.Errorf("unknown period %q", period)
}

// Measure computes the performance of s from the first close on or after since.
func Measure(idx model.Index, s *model.Series, since time.Time) Performance {
	p := Performance{Index: idx}
	var dates []time.Time
	var closes []float64
	if s != nil {
		for _, o := range s.Observations {
			if o.Date.Before(since) || !model.Available(o.Close) {
				continue
			}
			dates = append(dates, o.Date)
			closes = append(closes, o.Close)
		}
	}
	path := calculator.Rebase(closes)
	if len(path) < 2 {
		return p
	}

	p.Available = true
	p.Start, p.End = dates[0], dates[len(dates)-1]
	last := path[len(path)-1]
	p.TotalReturn = calculator.TotalReturn(1, last)
	p.CAGR = calculator.CAGR(1, last, p.End.Sub(p.Start).Hours()/24)
	p.MaxDrawdown = calculator.MaxDrawdown(path)
	return p
}

// MeasureAll measures every index over the same period, which starts relative
// to the latest data date across all series.
func MeasureAll(indices []model.Index, series map[string]*model.Series, period string) ([]Performance, error) {
	var latest time.Time
	for _, s := range series {
		if o, ok := s.Last(); ok && o.Date.After(latest) {
			latest = o.Date
		}
	}
	since, err := PeriodStart(period, latest)
	if err != nil {
		return nil, err
	}
	out := make([]Performance, 0, len(indices))
	for _, idx := range indices {
		out = append(out, Measure(idx, series[idx.Code], since))
	}
	return out, nil
}
