package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"FinSignal/internal/domain/models"
)

const ungrouped = "Other"

// HealthInput carries signals for one health evaluation. Components holds
// already normalized 0-100 scores and takes precedence over a signal of the
// same name.
type HealthInput struct {
	EntityID   string
	Timestamp  time.Time
	Signals    []models.NormalizedSignal
	Components map[string]float64
}

// HealthScorer computes multi-component health indices under one profile.
type HealthScorer struct {
	profile *Profile
}

func NewHealthScorer(p *Profile) *HealthScorer {
	return &HealthScorer{profile: p}
}

func (h *HealthScorer) Profile() *Profile { return h.profile }

// Score computes the health index. Only a duplicate indicator is an error.
func (h *HealthScorer) Score(in HealthInput) (models.HealthScore, error) {
	p := h.profile
	signals, err := indexSignals(in.Signals)
	if err != nil {
		return models.HealthScore{}, fmt.Errorf("health %s at %s: %w", in.EntityID, in.Timestamp.Format(time.RFC3339), err)
	}

	out := models.HealthScore{
		EntityID:       in.EntityID,
		Timestamp:      in.Timestamp,
		ProfileID:      p.id,
		ProfileVersion: p.version,
		Components:     make([]models.HealthComponent, 0, len(p.indicators)),
	}

	available := 0.0
	for _, ind := range p.indicators {
		c := models.HealthComponent{Name: ind.Name, Group: groupOf(ind), ConfiguredWeight: ind.Weight}
		if v, ok := in.Components[ind.Name]; ok {
			if finite(v) && v >= 0 && v <= 100 {
				c.Score = &v
			} else {
				c.Reason = models.ReasonInvalidValue
			}
		} else if sig, ok := signals[ind.Name]; !ok {
			c.Reason = models.ReasonInsufficientData
		} else if sig.ZScore == nil {
			c.Reason = sig.Reason
			if c.Reason == models.ReasonNone {
				c.Reason = models.ReasonInsufficientData
			}
		} else if s := 50 + ind.Direction()*(*sig.ZScore)*p.componentScale; finite(s) {
			s = clamp(s, 0, 100)
			c.Score = &s
		} else {
			c.Reason = models.ReasonInvalidValue
		}
		if c.Score != nil && ind.Weight > 0 {
			available += ind.Weight
		}
		out.Components = append(out.Components, c)
	}

	if available <= 0 {
		out.InsufficientData = true
		out.Grade = models.GradeInsufficient
		out.Groups = groupScores(out.Components, 0)
		return out, nil
	}

	overall := 0.0
	for i := range out.Components {
		c := &out.Components[i]
		if c.Score == nil || c.ConfiguredWeight <= 0 {
			continue
		}
		c.EffectiveWeight = c.ConfiguredWeight / available
		overall += c.EffectiveWeight * *c.Score
	}
	overall = clamp(overall, 0, 100)
	out.Overall = &overall
	out.Grade = h.grade(overall)
	out.Groups = groupScores(out.Components, available)
	out.Interval = h.interval(out.Components, overall)
	return out, nil
}

func (h *HealthScorer) grade(v float64) models.Grade {
	bands := h.profile.grades
	for _, b := range bands {
		if v >= b.Min {
			return b.Grade
		}
	}
	return bands[len(bands)-1].Grade
}

// interval estimates the standard error from the weighted dispersion of the
// components unless the profile fixes one.
func (h *HealthScorer) interval(comps []models.HealthComponent, overall float64) *models.ConfidenceInterval {
	se := h.profile.standardError
	if se == 0 {
		dispersion, sumSq := 0.0, 0.0
		for _, c := range comps {
			if c.Score == nil || c.EffectiveWeight == 0 {
				continue
			}
			d := *c.Score - overall
			dispersion += c.EffectiveWeight * d * d
			sumSq += c.EffectiveWeight * c.EffectiveWeight
		}
		se = math.Sqrt(dispersion * sumSq)
	}
	margin := zCritical(h.profile.confidenceLevel) * se
	if !finite(margin) {
		return nil
	}
	return &models.ConfidenceInterval{
		Lower:  clamp(overall-margin, 0, 100),
		Upper:  clamp(overall+margin, 0, 100),
		Margin: margin,
		Level:  h.profile.confidenceLevel,
	}
}

// zCritical is the two-sided standard normal critical value for level.
func zCritical(level float64) float64 {
	return math.Sqrt2 * math.Erfinv(level)
}

func groupOf(ind Indicator) string {
	if ind.Group == "" {
		return ungrouped
	}
	return ind.Group
}

func groupScores(comps []models.HealthComponent, available float64) []models.GroupScore {
	type acc struct {
		g      models.GroupScore
		weight float64
		sum    float64
	}
	byGroup := map[string]*acc{}
	var names []string
	for _, c := range comps {
		a, ok := byGroup[c.Group]
		if !ok {
			a = &acc{g: models.GroupScore{Group: c.Group}}
			byGroup[c.Group] = a
			names = append(names, c.Group)
		}
		a.g.Components++
		if c.Score == nil {
			continue
		}
		a.g.Available++
		if c.ConfiguredWeight > 0 {
			a.weight += c.ConfiguredWeight
			a.sum += c.ConfiguredWeight * *c.Score
		}
	}
	sort.Strings(names)

	out := make([]models.GroupScore, 0, len(names))
	for _, name := range names {
		a := byGroup[name]
		if a.weight > 0 {
			s := a.sum / a.weight
			a.g.Score = &s
			if available > 0 {
				a.g.WeightShare = a.weight / available
			}
		}
		out = append(out, a.g)
	}
	return out
}
