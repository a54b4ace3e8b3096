// Package scoring combines normalized signals into composite scores and
// health indices under a named, versioned profile.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/features"
)

// Kind selects the scorer a profile feeds.
type Kind string

const (
	KindComposite Kind = "composite"
	KindHealth    Kind = "health"
)

// WeightTolerance is the accepted deviation of the weight sum from 1.
const WeightTolerance = 0.01

const (
	defaultWindow          = 20
	defaultVolatilityCap   = 1.5
	defaultComponentScale  = 15
	defaultConfidenceLevel = 0.95
	defaultTargetRate      = 0.3
)

// IndicatorConfig is one indicator entry of a profile file.
type IndicatorConfig struct {
	Name      string  `yaml:"name" json:"name"`
	Weight    float64 `yaml:"weight" json:"weight"`
	Inverted  bool    `yaml:"inverted" json:"inverted"`
	Group     string  `yaml:"group" json:"group"`
	Type      string  `yaml:"type" json:"type"`
	Transform string  `yaml:"transform" json:"transform"`
	// Series is the source series ID; "{entity}" is replaced by the entity ID.
	// Empty means "{entity}:<name>".
	Series string `yaml:"series" json:"series"`
}

// RegimeScaling multiplies base thresholds per regime level.
type RegimeScaling struct {
	Low    float64 `yaml:"low" json:"low"`
	Normal float64 `yaml:"normal" json:"normal"`
	High   float64 `yaml:"high" json:"high"`
	Crisis float64 `yaml:"crisis" json:"crisis"`
	// Shift is applied on top of the level factor when a regime shift is flagged.
	Shift float64 `yaml:"shift" json:"shift"`
}

// DefaultRegimeScaling widens thresholds in stressed regimes and narrows
// them when volatility is low.
func DefaultRegimeScaling() RegimeScaling {
	return RegimeScaling{Low: 0.85, Normal: 1.0, High: 1.2, Crisis: 1.5, Shift: 1.15}
}

// DefaultThresholds are the base classification cut-offs.
func DefaultThresholds() models.Thresholds {
	return models.Thresholds{Buy: 0.3, StrongBuy: 0.6, Sell: -0.3, StrongSell: -0.6}
}

// GradeBand maps scores at or above Min to Grade.
type GradeBand struct {
	Grade models.Grade `yaml:"grade" json:"grade"`
	Min   float64      `yaml:"min" json:"min"`
}

// DefaultGrades are the health grade bands, highest first.
func DefaultGrades() []GradeBand {
	return []GradeBand{
		{Grade: models.GradeExcellent, Min: 80},
		{Grade: models.GradeStrong, Min: 65},
		{Grade: models.GradeModerate, Min: 50},
		{Grade: models.GradeWeak, Min: 35},
		{Grade: models.GradeCritical, Min: math.Inf(-1)},
	}
}

// ProfileConfig is the raw, unvalidated form of a profile.
type ProfileConfig struct {
	ID                  string             `yaml:"id" json:"id"`
	Version             string             `yaml:"version" json:"version"`
	Kind                Kind               `yaml:"kind" json:"kind"`
	Window              int                `yaml:"window" json:"window"`
	MinPoints           int                `yaml:"min_points" json:"min_points"`
	Indicators          []IndicatorConfig  `yaml:"indicators" json:"indicators"`
	VolatilityIndicator string             `yaml:"volatility_indicator" json:"volatility_indicator"`
	VolatilityCap       float64            `yaml:"volatility_cap" json:"volatility_cap"`
	Thresholds          *models.Thresholds `yaml:"thresholds" json:"thresholds"`
	RegimeScaling       *RegimeScaling     `yaml:"regime_scaling" json:"regime_scaling"`
	Grades              []GradeBand        `yaml:"grades" json:"grades"`
	ComponentScale      float64            `yaml:"component_scale" json:"component_scale"`
	ConfidenceLevel     float64            `yaml:"confidence_level" json:"confidence_level"`
	StandardError       float64            `yaml:"standard_error" json:"standard_error"`
	TargetSignalRate    float64            `yaml:"target_signal_rate" json:"target_signal_rate"`
}

// Indicator is a validated profile indicator.
type Indicator struct {
	Name      string
	Weight    float64
	Inverted  bool
	Group     string
	Type      string
	Transform features.Transform
	series    string
}

// Direction is -1 for inverted indicators and +1 otherwise.
func (i Indicator) Direction() float64 {
	if i.Inverted {
		return -1
	}
	return 1
}

// SeriesFor resolves the source series of the indicator for an entity.
func (i Indicator) SeriesFor(entityID string) string {
	return strings.ReplaceAll(i.series, "{entity}", entityID)
}

// Profile is an immutable, validated scoring profile. Build one with Compile.
type Profile struct {
	id              string
	version         string
	kind            Kind
	window          int
	minPoints       int
	indicators      []Indicator // sorted by name
	byName          map[string]int
	volatility      string
	volatilityCap   float64
	thresholds      models.Thresholds
	scaling         RegimeScaling
	grades          []GradeBand
	componentScale  float64
	confidenceLevel float64
	standardError   float64
	targetRate      float64
}

// Compile validates cfg and returns a profile. Weight problems are reported
// as *models.InvalidWeightConfigError.
func Compile(cfg ProfileConfig) (*Profile, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", models.ErrInvalidProfile)
	}
	if len(cfg.Indicators) == 0 {
		return nil, &models.InvalidWeightConfigError{ProfileID: cfg.ID, Reason: "no indicators"}
	}

	p := &Profile{
		id:              cfg.ID,
		version:         cfg.Version,
		kind:            cfg.Kind,
		window:          cfg.Window,
		minPoints:       cfg.MinPoints,
		byName:          make(map[string]int, len(cfg.Indicators)),
		volatility:      cfg.VolatilityIndicator,
		volatilityCap:   cfg.VolatilityCap,
		thresholds:      DefaultThresholds(),
		scaling:         DefaultRegimeScaling(),
		grades:          DefaultGrades(),
		componentScale:  cfg.ComponentScale,
		confidenceLevel: cfg.ConfidenceLevel,
		standardError:   cfg.StandardError,
		targetRate:      cfg.TargetSignalRate,
	}
	if p.version == "" {
		p.version = "1"
	}
	if p.kind == "" {
		p.kind = KindComposite
	}
	if p.kind != KindComposite && p.kind != KindHealth {
		return nil, fmt.Errorf("%w: profile %q: unknown kind %q", models.ErrInvalidProfile, cfg.ID, cfg.Kind)
	}
	if p.window <= 0 {
		p.window = defaultWindow
	}
	if p.minPoints <= 0 || p.minPoints > p.window {
		p.minPoints = p.window
	}
	if p.volatilityCap == 0 {
		p.volatilityCap = defaultVolatilityCap
	}
	if p.componentScale == 0 {
		p.componentScale = defaultComponentScale
	}
	if p.confidenceLevel == 0 {
		p.confidenceLevel = defaultConfidenceLevel
	}
	if p.targetRate == 0 {
		p.targetRate = defaultTargetRate
	}

	sum := 0.0
	for _, ic := range cfg.Indicators {
		name := strings.TrimSpace(ic.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: profile %q: indicator without name", models.ErrInvalidProfile, cfg.ID)
		}
		if _, dup := p.byName[name]; dup {
			return nil, fmt.Errorf("%w: profile %q: indicator %q listed twice", models.ErrInvalidProfile, cfg.ID, name)
		}
		if math.IsNaN(ic.Weight) || math.IsInf(ic.Weight, 0) {
			return nil, &models.InvalidWeightConfigError{ProfileID: cfg.ID, Reason: fmt.Sprintf("weight of %q is not finite", name)}
		}
		if ic.Weight < 0 {
			return nil, &models.InvalidWeightConfigError{ProfileID: cfg.ID, Reason: fmt.Sprintf("negative weight for %q", name), Sum: ic.Weight}
		}
		tr, err := features.ParseTransform(ic.Transform)
		if err != nil {
			return nil, fmt.Errorf("%w: profile %q: indicator %q: %v", models.ErrInvalidProfile, cfg.ID, name, err)
		}
		series := ic.Series
		if series == "" {
			series = "{entity}:" + name
		}
		p.byName[name] = -1
		p.indicators = append(p.indicators, Indicator{
			Name:      name,
			Weight:    ic.Weight,
			Inverted:  ic.Inverted,
			Group:     ic.Group,
			Type:      ic.Type,
			Transform: tr,
			series:    series,
		})
	}
	sort.Slice(p.indicators, func(i, j int) bool { return p.indicators[i].Name < p.indicators[j].Name })
	for i, ind := range p.indicators {
		p.byName[ind.Name] = i
		sum += ind.Weight
	}
	if math.Abs(sum-1) > WeightTolerance {
		return nil, &models.InvalidWeightConfigError{ProfileID: cfg.ID, Reason: "weights must sum to 1", Sum: sum}
	}

	if p.volatility != "" {
		if _, ok := p.byName[p.volatility]; !ok {
			return nil, fmt.Errorf("%w: profile %q: volatility indicator %q is not listed", models.ErrInvalidProfile, cfg.ID, p.volatility)
		}
	}
	if p.volatilityCap < 1 {
		return nil, fmt.Errorf("%w: profile %q: volatility_cap must be at least 1", models.ErrInvalidProfile, cfg.ID)
	}

	if cfg.Thresholds != nil {
		p.thresholds = *cfg.Thresholds
	}
	if err := validateThresholds(p.thresholds); err != nil {
		return nil, fmt.Errorf("%w: profile %q: %v", models.ErrInvalidProfile, cfg.ID, err)
	}
	if cfg.RegimeScaling != nil {
		p.scaling = *cfg.RegimeScaling
	}
	for _, f := range []float64{p.scaling.Low, p.scaling.Normal, p.scaling.High, p.scaling.Crisis, p.scaling.Shift} {
		if !(f > 0) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: profile %q: regime scaling factors must be positive", models.ErrInvalidProfile, cfg.ID)
		}
	}

	if len(cfg.Grades) > 0 {
		p.grades = append([]GradeBand(nil), cfg.Grades...)
		sort.SliceStable(p.grades, func(i, j int) bool { return p.grades[i].Min > p.grades[j].Min })
	}
	if !(p.confidenceLevel > 0 && p.confidenceLevel < 1) {
		return nil, fmt.Errorf("%w: profile %q: confidence_level must be in (0, 1)", models.ErrInvalidProfile, cfg.ID)
	}
	if p.standardError < 0 || !(p.componentScale > 0) {
		return nil, fmt.Errorf("%w: profile %q: standard_error and component_scale must be non-negative", models.ErrInvalidProfile, cfg.ID)
	}
	if !(p.targetRate > 0 && p.targetRate < 1) {
		return nil, fmt.Errorf("%w: profile %q: target_signal_rate must be in (0, 1)", models.ErrInvalidProfile, cfg.ID)
	}
	return p, nil
}

func validateThresholds(t models.Thresholds) error {
	for _, v := range []float64{t.Buy, t.StrongBuy, t.Sell, t.StrongSell} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("thresholds must be finite")
		}
	}
	if !(t.Buy > 0 && t.StrongBuy >= t.Buy) {
		return fmt.Errorf("need 0 < buy <= strong_buy, got %.4f / %.4f", t.Buy, t.StrongBuy)
	}
	if !(t.Sell < 0 && t.StrongSell <= t.Sell) {
		return fmt.Errorf("need strong_sell <= sell < 0, got %.4f / %.4f", t.StrongSell, t.Sell)
	}
	return nil
}

func (p *Profile) ID() string { return p.id }
func (p *Profile) Version() string { return p.version }
func (p *Profile) Kind() Kind { return p.kind }
func (p *Profile) Window() int { return p.window }
func (p *Profile) MinPoints() int { return p.minPoints }
func (p *Profile) VolatilityIndicator() string { return p.volatility }

// Indicators returns a copy of the indicators sorted by name.
func (p *Profile) Indicators() []Indicator {
	return append([]Indicator(nil), p.indicators...)
}

// Indicator looks up an indicator by name.
func (p *Profile) Indicator(name string) (Indicator, bool) {
	i, ok := p.byName[name]
	if !ok {
		return Indicator{}, false
	}
	return p.indicators[i], true
}

// Weights returns the configured indicator weights.
func (p *Profile) Weights() map[string]float64 {
	out := make(map[string]float64, len(p.indicators))
	for _, ind := range p.indicators {
		out[ind.Name] = ind.Weight
	}
	return out
}

// BaseThresholds returns the unscaled thresholds.
func (p *Profile) BaseThresholds() models.Thresholds { return p.thresholds }

// TargetSignalRate is the share of actionable signals calibration aims for.
func (p *Profile) TargetSignalRate() float64 { return p.targetRate }

// WithThresholds returns a copy of the profile using t as base thresholds.
func (p *Profile) WithThresholds(t models.Thresholds) (*Profile, error) {
	if err := validateThresholds(t); err != nil {
		return nil, fmt.Errorf("%w: profile %q: %v", models.ErrInvalidProfile, p.id, err)
	}
	cp := *p
	cp.thresholds = t
	return &cp, nil
}

// Config returns the profile back in raw form, including defaults applied
// at compile time.
func (p *Profile) Config() ProfileConfig {
	th := p.thresholds
	sc := p.scaling
	cfg := ProfileConfig{
		ID:                  p.id,
		Version:             p.version,
		Kind:                p.kind,
		Window:              p.window,
		MinPoints:           p.minPoints,
		VolatilityIndicator: p.volatility,
		VolatilityCap:       p.volatilityCap,
		Thresholds:          &th,
		RegimeScaling:       &sc,
		Grades:              append([]GradeBand(nil), p.grades...),
		ComponentScale:      p.componentScale,
		ConfidenceLevel:     p.confidenceLevel,
		StandardError:       p.standardError,
		TargetSignalRate:    p.targetRate,
	}
	for _, ind := range p.indicators {
		cfg.Indicators = append(cfg.Indicators, IndicatorConfig{
			Name:      ind.Name,
			Weight:    ind.Weight,
			Inverted:  ind.Inverted,
			Group:     ind.Group,
			Type:      ind.Type,
			Transform: string(ind.Transform),
			Series:    ind.series,
		})
	}
	return cfg
}
