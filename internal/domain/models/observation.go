package models

import (
	"math"
	"sort"
	"time"
)

// Observation is a single ingested reading of a series.
type Observation struct {
	SeriesID  string
	Timestamp time.Time
	Value     float64
}

// NormalizeObservations returns observations sorted ascending by timestamp with
// duplicate timestamps and non-finite values removed. The first ingested value
// for a timestamp wins. The input slice is left untouched.
func NormalizeObservations(obs []Observation) []Observation {
	if len(obs) == 0 {
		return nil
	}
	out := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			continue
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	w := 0
	for i := range out {
		if w > 0 && out[i].Timestamp.Equal(out[w-1].Timestamp) {
			continue
		}
		out[w] = out[i]
		w++
	}
	return out[:w]
}

// UpTo returns the prefix of ascending observations with Timestamp <= t.
func UpTo(obs []Observation, t time.Time) []Observation {
	n := sort.Search(len(obs), func(i int) bool { return obs[i].Timestamp.After(t) })
	return obs[:n]
}

// Values extracts the value column.
func Values(obs []Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out
}
