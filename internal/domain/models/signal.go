package models

import "time"

// WindowStatus describes whether a rolling window produced usable statistics.
type WindowStatus string

const (
	WindowOK           WindowStatus = "ok"
	WindowInsufficient WindowStatus = "insufficient_data"
	WindowDegenerate   WindowStatus = "degenerate_variance"
)

// RollingWindowStats is the derived state of one rolling window. Values are
// recomputed whenever the window advances; history is never mutated in place.
type RollingWindowStats struct {
	SeriesID      string
	IndicatorName string
	WindowSize    int
	Mean          float64
	StdDev        float64 // sample (N-1)
	Count         int
	LastUpdated   time.Time
	Status        WindowStatus
	Partial       bool // Count < WindowSize but accepted by caller's minimum
}

// Usable reports whether a z-score can be derived from the window.
func (s RollingWindowStats) Usable() bool {
	return s.Status == WindowOK && s.StdDev > 0
}

// SignalReason explains why a z-score is unavailable.
type SignalReason string

const (
	ReasonNone               SignalReason = ""
	ReasonInsufficientData   SignalReason = "insufficient_data"
	ReasonDegenerateVariance SignalReason = "degenerate_variance"
	ReasonInvalidValue       SignalReason = "invalid_value"
)

// NormalizedSignal is a raw reading expressed as a z-score of its rolling window.
// ZScore is nil when the score cannot be computed; that is distinct from 0.
type NormalizedSignal struct {
	SeriesID      string
	IndicatorName string
	Timestamp     time.Time
	RawValue      float64
	ZScore        *float64
	Reason        SignalReason
}

// Available reports whether the signal carries a usable z-score.
func (s NormalizedSignal) Available() bool { return s.ZScore != nil }
