package scoring

import (
	"fmt"
	"math"
	"sort"

	"FinSignal/internal/domain/models"
)

// minCalibrationPoints is the smallest history CalibrateThresholds accepts.
const minCalibrationPoints = 30

// strongShare is the fraction of actionable signals calibrated as strong.
const strongShare = 1.0 / 3.0

func (s RegimeScaling) factor(level models.RegimeLevel) float64 {
	switch level {
	case models.RegimeLow:
		return s.Low
	case models.RegimeHigh:
		return s.High
	case models.RegimeCrisis:
		return s.Crisis
	default:
		return s.Normal
	}
}

// ThresholdsFor scales the base thresholds for a regime. All four values are
// multiplied by the same positive factor, so the ordering
// strongSell <= sell < 0 < buy <= strongBuy holds in every regime.
func (p *Profile) ThresholdsFor(r models.RegimeState) models.Thresholds {
	f := p.scaling.factor(r.Level)
	if r.ShiftDetected {
		f *= p.scaling.Shift
	}
	t := p.thresholds
	return models.Thresholds{
		Buy:        t.Buy * f,
		StrongBuy:  t.StrongBuy * f,
		Sell:       t.Sell * f,
		StrongSell: t.StrongSell * f,
	}
}

// Classify maps an adjusted score to a classification and strength.
func Classify(score float64, t models.Thresholds) (models.Classification, float64) {
	switch {
	case score >= t.StrongBuy:
		return models.StrongBuy, strength(score, t.StrongBuy)
	case score >= t.Buy:
		return models.Buy, strength(score, t.StrongBuy)
	case score <= t.StrongSell:
		return models.StrongSell, strength(score, t.StrongSell)
	case score <= t.Sell:
		return models.Sell, strength(score, t.StrongSell)
	case score >= 0:
		return models.Hold, strength(score, t.StrongBuy)
	default:
		return models.Hold, strength(score, t.StrongSell)
	}
}

func strength(score, strong float64) float64 {
	if strong == 0 {
		return 0
	}
	return clamp(math.Abs(score)/math.Abs(strong), 0, 1)
}

// CalibrateThresholds derives symmetric base thresholds from a history of
// adjusted scores so that about targetRate of them would be actionable, a
// third of those strong. It is an offline tool and never runs during scoring.
func CalibrateThresholds(history []float64, targetRate float64) (models.Thresholds, error) {
	if !(targetRate > 0 && targetRate < 1) {
		return models.Thresholds{}, fmt.Errorf("target rate %.4f must be in (0, 1)", targetRate)
	}
	abs := make([]float64, 0, len(history))
	for _, v := range history {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			abs = append(abs, math.Abs(v))
		}
	}
	if len(abs) < minCalibrationPoints {
		return models.Thresholds{}, fmt.Errorf("calibrate with %d scores, need %d: %w", len(abs), minCalibrationPoints, models.ErrInsufficientData)
	}
	sort.Float64s(abs)

	buy := quantile(abs, 1-targetRate)
	strong := quantile(abs, 1-targetRate*strongShare)
	if buy <= 0 {
		return models.Thresholds{}, fmt.Errorf("calibrate: history too concentrated at zero: %w", models.ErrDegenerateVariance)
	}
	return models.Thresholds{Buy: buy, StrongBuy: strong, Sell: -buy, StrongSell: -strong}, nil
}

// quantile interpolates linearly between order statistics of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
