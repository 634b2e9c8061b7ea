package valuation

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"ValuationSentinel/internal/calculator"
	"ValuationSentinel/internal/model"
)

// RawTable is an untyped valuation table as delivered by a data vendor.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// AverageYears are the trailing windows computed for every observation.
var AverageYears = []int{3, 5, 10}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"20060102",
	"2006.01.02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
}

// Load normalizes a raw table into a Series. It returns nil when the table is nil,
// lacks a date or P/E column, or has no usable rows after cleaning.
func Load(code string, t *RawTable) *model.Series {
	if t == nil {
		return nil
	}
	cols := resolveColumns(t.Columns)
	if cols[FieldDate] < 0 || cols[FieldPE] < 0 {
		return nil
	}

	obs := make([]model.Observation, 0, len(t.Rows))
	for _, row := range t.Rows {
		date, ok := ParseDate(cell(row, cols[FieldDate]))
		if !ok {
			continue
		}
		pe := ParseNumber(cell(row, cols[FieldPE]))
		if math.IsNaN(pe) {
			continue
		}
		obs = append(obs, model.Observation{
			Date:       date,
			PE:         pe,
			Percentile: ParseNumber(cell(row, cols[FieldPercentile])),
			Close:      ParseNumber(cell(row, cols[FieldClose])),
		})
	}
	if len(obs) == 0 {
		return nil
	}

	normalizePercentiles(obs)
	obs = sortDedupe(obs)
	fillAverages(obs)

	return &model.Series{Code: code, Observations: obs, LoadedAt: time.Now()}
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// ParseNumber strips everything except digits and the decimal point, then parses.
// Anything that does not survive is NaN.
func ParseNumber(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// ParseDate accepts the date spellings seen across vendors and truncates to the day.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// normalizePercentiles rescales a column expressed in percent to 0..1.
func normalizePercentiles(obs []model.Observation) {
	maxPct := math.Inf(-1)
	for _, o := range obs {
		if !math.IsNaN(o.Percentile) && o.Percentile > maxPct {
			maxPct = o.Percentile
		}
	}
	scale := 1.0
	if maxPct > 1.5 {
		scale = 100
	}
	for i := range obs {
		p := obs[i].Percentile
		if math.IsNaN(p) {
			continue
		}
		obs[i].Percentile = math.Min(1, math.Max(0, p/scale))
	}
}

// sortDedupe orders by date and keeps the last occurrence of a repeated date.
func sortDedupe(obs []model.Observation) []model.Observation {
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	out := obs[:0]
	for i, o := range obs {
		if i+1 < len(obs) && obs[i+1].Date.Equal(o.Date) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func fillAverages(obs []model.Observation) {
	dates := make([]time.Time, len(obs))
	pes := make([]float64, len(obs))
	for i, o := range obs {
		dates[i] = o.Date
		pes[i] = o.PE
	}
	for _, years := range AverageYears {
		means := calculator.TrailingMeans(dates, pes, calculator.YearsWindow(years))
		for i := range obs {
			switch years {
			case 3:
				obs[i].Avg3Y = means[i]
			case 5:
				obs[i].Avg5Y = means[i]
			case 10:
				obs[i].Avg10Y = means[i]
			}
		}
	}
}
