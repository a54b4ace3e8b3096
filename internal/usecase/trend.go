package usecase

import (
	"context"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// TrendReporter reads stored history and fits a least-squares line through
// the most recent adjusted scores. It never feeds back into scoring.
type TrendReporter struct {
	history domrepo.ScoreHistoryReader
	points  int
	flat    float64
}

// NewTrendReporter uses the last points scores; slopes within ±flat per
// observation count as STABLE.
func NewTrendReporter(history domrepo.ScoreHistoryReader, points int, flat float64) *TrendReporter {
	if points < 2 {
		points = 10
	}
	if flat <= 0 {
		flat = 0.01
	}
	return &TrendReporter{history: history, points: points, flat: flat}
}

// Trend reports the direction of entityID's scores under profileID.
// Insufficient scores are ignored.
func (r *TrendReporter) Trend(ctx context.Context, profileID, entityID string, from, to time.Time) (models.Trend, error) {
	hist, err := r.history.History(ctx, entityID, from, to)
	if err != nil {
		return models.Trend{}, fmt.Errorf("trend %s: %w", entityID, err)
	}
	var ys []float64
	var latest *models.CompositeScore
	for i := range hist {
		s := hist[i]
		if s.ProfileID != profileID || s.InsufficientData {
			continue
		}
		ys = append(ys, s.AdjustedScore)
		latest = &s
	}
	if len(ys) > r.points {
		ys = ys[len(ys)-r.points:]
	}

	out := models.Trend{EntityID: entityID, Points: len(ys), Latest: latest, Direction: models.TrendUnknown}
	if len(ys) < 2 {
		return out, nil
	}
	out.Slope = slope(ys)
	switch {
	case out.Slope > r.flat:
		out.Direction = models.TrendImproving
	case out.Slope < -r.flat:
		out.Direction = models.TrendDeteriorating
	default:
		out.Direction = models.TrendStable
	}
	return out, nil
}

// slope is the least-squares slope of ys against their index.
func slope(ys []float64) float64 {
	n := float64(len(ys))
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}
