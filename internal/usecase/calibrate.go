package usecase

import (
	"context"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/scoring"
)

// Calibration is the outcome of an offline threshold fit.
type Calibration struct {
	ProfileID  string
	Samples    int
	TargetRate float64
	Current    models.Thresholds
	Suggested  models.Thresholds
	// Profile carries Suggested; it is not persisted anywhere.
	Profile *scoring.Profile
}

// Calibrator derives thresholds from stored history so that about
// TargetSignalRate of past scores would have been actionable.
type Calibrator struct {
	history domrepo.ScoreHistoryReader
}

func NewCalibrator(history domrepo.ScoreHistoryReader) *Calibrator {
	return &Calibrator{history: history}
}

func (c *Calibrator) Calibrate(ctx context.Context, p *scoring.Profile, entities []string, from, to time.Time) (Calibration, error) {
	var scores []float64
	for _, e := range entities {
		hist, err := c.history.History(ctx, e, from, to)
		if err != nil {
			return Calibration{}, fmt.Errorf("calibrate %s: %w", p.ID(), err)
		}
		for _, s := range hist {
			if s.ProfileID == p.ID() && !s.InsufficientData {
				scores = append(scores, s.AdjustedScore)
			}
		}
	}

	t, err := scoring.CalibrateThresholds(scores, p.TargetSignalRate())
	if err != nil {
		return Calibration{}, fmt.Errorf("calibrate %s from %d scores: %w", p.ID(), len(scores), err)
	}
	tuned, err := p.WithThresholds(t)
	if err != nil {
		return Calibration{}, err
	}
	return Calibration{
		ProfileID:  p.ID(),
		Samples:    len(scores),
		TargetRate: p.TargetSignalRate(),
		Current:    p.BaseThresholds(),
		Suggested:  t,
		Profile:    tuned,
	}, nil
}
