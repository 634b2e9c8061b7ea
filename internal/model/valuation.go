package model

import (
	"math"
	"time"
)

// Observation is one row of a valuation series.
// Avg3Y/Avg5Y/Avg10Y are NaN until enough history exists; Percentile and Close are
// NaN when the source table did not carry them.
type Observation struct {
	Date       time.Time
	PE         float64
	Percentile float64 // 0.0 ~ 1.0
	Close      float64
	Avg3Y      float64
	Avg5Y      float64
	Avg10Y     float64
}

// Series holds the normalized valuation history of one index.
type Series struct {
	Code         string
	Observations []Observation
	LoadedAt     time.Time
}

// Len returns the number of observations.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Observations)
}

// First returns the earliest observation.
func (s *Series) First() (Observation, bool) {
	if s.Len() == 0 {
		return Observation{}, false
	}
	return s.Observations[0], true
}

// Last returns the latest observation.
func (s *Series) Last() (Observation, bool) {
	if s.Len() == 0 {
		return Observation{}, false
	}
	return s.Observations[len(s.Observations)-1], true
}

// Snapshot is the valuation state on the latest available day.
type Snapshot struct {
	Date       time.Time
	PE         float64
	Percentile float64
	Close      float64
	Avg3Y      float64
	Avg5Y      float64
	Avg10Y     float64
}

// SnapshotOf copies the metrics of an observation.
func SnapshotOf(o Observation) Snapshot {
	return Snapshot{
		Date:       o.Date,
		PE:         o.PE,
		Percentile: o.Percentile,
		Close:      o.Close,
		Avg3Y:      o.Avg3Y,
		Avg5Y:      o.Avg5Y,
		Avg10Y:     o.Avg10Y,
	}
}

// Available reports whether a computed metric holds a usable value.
func Available(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Index is a tracked market index.
// Prefix names its valuation files in the data directory.
type Index struct {
	Code   string `yaml:"code"`
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
}
