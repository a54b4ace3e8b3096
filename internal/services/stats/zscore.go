package stats

import (
	"time"

	"FinSignal/internal/domain/models"
)

// Normalize converts value into a z-score against w. A nil result carries the
// reason the score is unavailable; division by zero never happens.
func Normalize(value float64, w models.RollingWindowStats) (*float64, models.SignalReason) {
	if !isFinite(value) {
		return nil, models.ReasonInvalidValue
	}
	switch w.Status {
	case models.WindowInsufficient:
		return nil, models.ReasonInsufficientData
	case models.WindowDegenerate:
		return nil, models.ReasonDegenerateVariance
	}
	if w.StdDev <= 0 {
		return nil, models.ReasonDegenerateVariance
	}
	if w.Status != models.WindowOK {
		return nil, models.ReasonInsufficientData
	}
	z := (value - w.Mean) / w.StdDev
	if !isFinite(z) {
		return nil, models.ReasonInvalidValue
	}
	return &z, models.ReasonNone
}

// NormalizeSignal wraps Normalize into a NormalizedSignal.
func NormalizeSignal(w models.RollingWindowStats, ts time.Time, value float64) models.NormalizedSignal {
	z, reason := Normalize(value, w)
	return models.NormalizedSignal{
		SeriesID:      w.SeriesID,
		IndicatorName: w.IndicatorName,
		Timestamp:     ts,
		RawValue:      value,
		ZScore:        z,
		Reason:        reason,
	}
}

// NormalizeLatest scores the last observation against the window ending at
// it. An empty series yields an insufficient signal stamped with at.
func NormalizeLatest(seriesID, indicator string, obs []models.Observation, at time.Time, opts ...Option) models.NormalizedSignal {
	if len(obs) == 0 {
		return models.NormalizedSignal{
			SeriesID:      seriesID,
			IndicatorName: indicator,
			Timestamp:     at,
			Reason:        models.ReasonInsufficientData,
		}
	}
	w := BuildWindowStats(seriesID, indicator, obs, opts...)
	last := obs[len(obs)-1]
	return NormalizeSignal(w, last.Timestamp, last.Value)
}
