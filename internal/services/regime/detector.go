// Package regime classifies the volatility environment from a volatility
// index series such as VIX.
package regime

import (
	"fmt"
	"math"
	"time"

	"FinSignal/internal/domain/models"
	domsvc "FinSignal/internal/domain/service"
)

// Config holds level boundaries and shift detection parameters.
type Config struct {
	LowBelow      float64 `yaml:"low_below" default:"20"`
	HighFrom      float64 `yaml:"high_from" default:"40"`
	CrisisAbove   float64 `yaml:"crisis_above" default:"45"`
	ShiftWindow   int     `yaml:"shift_window" default:"30"`
	ShiftAbsolute float64 `yaml:"shift_absolute" default:"10"`
	ShiftRelative float64 `yaml:"shift_relative" default:"0.5"`
	MinPoints     int     `yaml:"min_points" default:"20"`
}

// DefaultConfig returns the standard VIX-style boundaries.
func DefaultConfig() Config {
	return Config{
		LowBelow:      20,
		HighFrom:      40,
		CrisisAbove:   45,
		ShiftWindow:   30,
		ShiftAbsolute: 10,
		ShiftRelative: 0.5,
		MinPoints:     20,
	}
}

// Validate checks the boundaries are ordered.
func (c Config) Validate() error {
	if !(c.LowBelow <= c.HighFrom && c.HighFrom <= c.CrisisAbove) {
		return fmt.Errorf("regime boundaries must be ordered: low_below %.2f, high_from %.2f, crisis_above %.2f",
			c.LowBelow, c.HighFrom, c.CrisisAbove)
	}
	if c.ShiftWindow <= 0 {
		return fmt.Errorf("shift_window must be positive")
	}
	if c.MinPoints < 1 {
		return fmt.Errorf("min_points must be positive")
	}
	if c.ShiftAbsolute <= 0 && c.ShiftRelative <= 0 {
		return fmt.Errorf("at least one shift threshold must be positive")
	}
	return nil
}

// Detector is stateless; every call derives a fresh RegimeState.
type Detector struct {
	cfg Config
}

// New creates a detector. Zero-valued configs fall back to DefaultConfig.
func New(cfg Config) *Detector {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Detector{cfg: cfg}
}

// Detect classifies the latest value of series and flags a shift between the
// trailing two shift windows. series is ordered oldest first.
func (d *Detector) Detect(series []float64, asOf time.Time, trigger string) models.RegimeState {
	vals := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		st := models.NormalRegime(asOf, "volatility series unavailable")
		st.TriggeringSeries = trigger
		return st
	}
	if len(vals) < d.cfg.MinPoints {
		st := models.NormalRegime(asOf, fmt.Sprintf("volatility series has %d points, need %d", len(vals), d.cfg.MinPoints))
		st.TriggeringSeries = trigger
		return st
	}

	cur := vals[len(vals)-1]
	st := models.RegimeState{
		Level:            d.Level(cur),
		DetectedAt:       asOf,
		TriggeringSeries: trigger,
		CurrentLevel:     &cur,
	}

	w := d.cfg.ShiftWindow
	if len(vals) >= 2*w {
		recent := mean(vals[len(vals)-w:])
		prior := mean(vals[len(vals)-2*w : len(vals)-w])
		delta := recent - prior
		st.RecentMean, st.PriorMean, st.ShiftDelta = &recent, &prior, &delta
		st.ShiftDetected = d.shifted(delta, prior)
	}
	return st
}

// Level maps a single reading to its regime band.
func (d *Detector) Level(v float64) models.RegimeLevel {
	switch {
	case v > d.cfg.CrisisAbove:
		return models.RegimeCrisis
	case v >= d.cfg.HighFrom:
		return models.RegimeHigh
	case v >= d.cfg.LowBelow:
		return models.RegimeNormal
	default:
		return models.RegimeLow
	}
}

func (d *Detector) shifted(delta, prior float64) bool {
	abs := math.Abs(delta)
	if d.cfg.ShiftAbsolute > 0 && abs >= d.cfg.ShiftAbsolute {
		return true
	}
	if d.cfg.ShiftRelative > 0 && prior != 0 && abs/math.Abs(prior) >= d.cfg.ShiftRelative {
		return true
	}
	return false
}

// Lookback is the number of points the detector can use.
func (d *Detector) Lookback() int {
	if n := 2 * d.cfg.ShiftWindow; n > d.cfg.MinPoints {
		return n
	}
	return d.cfg.MinPoints
}

func mean(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}

var _ domsvc.RegimeClassifier = (*Detector)(nil)
