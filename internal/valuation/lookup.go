package valuation

import (
	"math"
	"sort"
	"time"

	"ValuationSentinel/internal/model"
)

// Lookup returns the P/E and close effective on date: the exact day if present,
// otherwise the nearest preceding trading day. A date before the series is a miss.
func Lookup(s *model.Series, date time.Time) (pe, closing float64, ok bool) {
	if s.Len() == 0 || date.IsZero() {
		return math.NaN(), math.NaN(), false
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	obs := s.Observations
	// first index strictly after day
	i := sort.Search(len(obs), func(i int) bool { return obs[i].Date.After(day) })
	if i == 0 {
		return math.NaN(), math.NaN(), false
	}
	o := obs[i-1]
	return o.PE, o.Close, true
}

// LookupString is Lookup for a date string; malformed input is a miss.
func LookupString(s *model.Series, date string) (pe, closing float64, ok bool) {
	d, valid := ParseDate(date)
	if !valid {
		return math.NaN(), math.NaN(), false
	}
	return Lookup(s, d)
}

// Latest returns the snapshot of the most recent observation.
func Latest(s *model.Series) (model.Snapshot, bool) {
	o, ok := s.Last()
	if !ok {
		return model.Snapshot{}, false
	}
	return model.SnapshotOf(o), true
}

// Closes returns the close column of the series in date order, skipping gaps.
func Closes(s *model.Series) []float64 {
	out := make([]float64, 0, s.Len())
	if s == nil {
		return out
	}
	for _, o := range s.Observations {
		if model.Available(o.Close) {
			out = append(out, o.Close)
		}
	}
	return out
}
