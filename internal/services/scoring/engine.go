package scoring

import (
	"fmt"
	"math"
	"time"

	"FinSignal/internal/domain/models"
)

// ScoreInput is everything the engine needs for one (entity, timestamp).
// Signals are matched to profile indicators by IndicatorName; the order of
// Signals does not affect the result.
type ScoreInput struct {
	EntityID  string
	Timestamp time.Time
	Signals   []models.NormalizedSignal
	Regime    models.RegimeState
}

// Engine computes composite scores under one profile. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	profile *Profile
}

// NewEngine binds an engine to a compiled profile.
func NewEngine(p *Profile) *Engine {
	return &Engine{profile: p}
}

// Profile returns the profile the engine scores with.
func (e *Engine) Profile() *Profile { return e.profile }

// Score computes the composite score. It fails only on malformed input;
// missing or unusable data yields an insufficient HOLD result instead.
func (e *Engine) Score(in ScoreInput) (models.CompositeScore, error) {
	p := e.profile
	signals, err := indexSignals(in.Signals)
	if err != nil {
		return models.CompositeScore{}, fmt.Errorf("score %s at %s: %w", in.EntityID, in.Timestamp.Format(time.RFC3339), err)
	}

	out := models.CompositeScore{
		EntityID:             in.EntityID,
		Timestamp:            in.Timestamp,
		ProfileID:            p.id,
		ProfileVersion:       p.version,
		VolatilityMultiplier: 1,
		Classification:       models.Hold,
		ThresholdsUsed:       p.ThresholdsFor(in.Regime),
		RegimeLevel:          in.Regime.Level,
		RegimeShift:          in.Regime.ShiftDetected,
		Contributions:        make([]models.IndicatorContribution, 0, len(p.indicators)),
	}
	if out.RegimeLevel == "" {
		out.RegimeLevel = models.RegimeNormal
	}

	unstable := false
	available := 0.0
	for _, ind := range p.indicators {
		c := models.IndicatorContribution{Indicator: ind.Name, ConfiguredWeight: ind.Weight}
		sig, ok := signals[ind.Name]
		switch {
		case !ok:
			c.Reason = models.ReasonInsufficientData
		case sig.ZScore == nil:
			c.Reason = sig.Reason
			if c.Reason == models.ReasonNone {
				c.Reason = models.ReasonInsufficientData
			}
		case !finite(*sig.ZScore):
			unstable = true
			c.Reason = models.ReasonInvalidValue
		default:
			z := *sig.ZScore
			b := band(z) * ind.Direction()
			c.ZScore = &z
			c.Contribution = &b
			if ind.Weight > 0 {
				available += ind.Weight
			}
		}
		out.Contributions = append(out.Contributions, c)
	}
	out.AvailableWeight = available

	if unstable {
		return insufficient(out, models.ErrNumericInstability.Error()), nil
	}
	if available <= 0 {
		return insufficient(out, models.ErrInsufficientData.Error()), nil
	}

	// contributions are in sorted indicator order, so the sum is bitwise stable
	raw := 0.0
	for i := range out.Contributions {
		c := &out.Contributions[i]
		if c.Contribution == nil || c.ConfiguredWeight <= 0 {
			continue
		}
		c.EffectiveWeight = c.ConfiguredWeight / available
		raw += c.EffectiveWeight * *c.Contribution
	}

	mult := e.volatilityMultiplier(signals)
	adjusted := raw * mult
	if !finite(raw) || !finite(mult) || !finite(adjusted) {
		return insufficient(out, models.ErrNumericInstability.Error()), nil
	}

	out.RawWeightedScore = raw
	out.VolatilityMultiplier = mult
	out.AdjustedScore = adjusted
	out.Classification, out.Strength = Classify(adjusted, out.ThresholdsUsed)
	return out, nil
}

// volatilityMultiplier amplifies magnitude by the volatility indicator's z.
func (e *Engine) volatilityMultiplier(signals map[string]models.NormalizedSignal) float64 {
	if e.profile.volatility == "" {
		return 1
	}
	sig, ok := signals[e.profile.volatility]
	if !ok || sig.ZScore == nil || !finite(*sig.ZScore) {
		return 1
	}
	return math.Min(e.profile.volatilityCap, 1+0.1*math.Abs(*sig.ZScore))
}

// band maps a z-score to a bounded contribution by statistical confidence.
func band(z float64) float64 {
	a := math.Abs(z)
	switch {
	case a > 2.58:
		return math.Copysign(1.0, z)
	case a > 1.96:
		return math.Copysign(0.75, z)
	case a > 1.0:
		return math.Copysign(0.5, z)
	default:
		return z * 0.25
	}
}

func insufficient(s models.CompositeScore, reason string) models.CompositeScore {
	s.InsufficientData = true
	s.InsufficientReason = reason
	s.Classification = models.Hold
	s.Strength = 0
	s.RawWeightedScore = 0
	s.AdjustedScore = 0
	s.VolatilityMultiplier = 1
	for i := range s.Contributions {
		s.Contributions[i].EffectiveWeight = 0
	}
	return s
}

func indexSignals(signals []models.NormalizedSignal) (map[string]models.NormalizedSignal, error) {
	out := make(map[string]models.NormalizedSignal, len(signals))
	for _, s := range signals {
		if _, dup := out[s.IndicatorName]; dup {
			return nil, fmt.Errorf("%w: %q", models.ErrDuplicateIndicator, s.IndicatorName)
		}
		out[s.IndicatorName] = s
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
