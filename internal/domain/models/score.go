package models

import "time"

// Classification is the discrete trading signal derived from a composite score.
type Classification string

const (
	StrongBuy  Classification = "STRONG_BUY"
	Buy        Classification = "BUY"
	Hold       Classification = "HOLD"
	Sell       Classification = "SELL"
	StrongSell Classification = "STRONG_SELL"
)

// Thresholds are the classification cut-offs applied to an adjusted score.
// Buy side values are positive, sell side values negative.
type Thresholds struct {
	Buy        float64 `json:"buy" yaml:"buy"`
	StrongBuy  float64 `json:"strong_buy" yaml:"strong_buy"`
	Sell       float64 `json:"sell" yaml:"sell"`
	StrongSell float64 `json:"strong_sell" yaml:"strong_sell"`
}

// IndicatorContribution records how one indicator fed into a composite score.
type IndicatorContribution struct {
	Indicator        string       `json:"indicator"`
	ZScore           *float64     `json:"z_score"`
	Contribution     *float64     `json:"contribution"` // banded and direction-corrected
	ConfiguredWeight float64      `json:"configured_weight"`
	EffectiveWeight  float64      `json:"effective_weight"` // after renormalization
	Reason           SignalReason `json:"reason,omitempty"`
}

// CompositeScore is one immutable scoring result for (EntityID, Timestamp).
type CompositeScore struct {
	EntityID             string                  `json:"entity_id"`
	Timestamp            time.Time               `json:"timestamp"`
	ProfileID            string                  `json:"profile_id"`
	ProfileVersion       string                  `json:"profile_version"`
	RawWeightedScore     float64                 `json:"raw_weighted_score"`
	AdjustedScore        float64                 `json:"adjusted_score"`
	VolatilityMultiplier float64                 `json:"volatility_multiplier"`
	Classification       Classification          `json:"classification"`
	Strength             float64                 `json:"strength"`
	ThresholdsUsed       Thresholds              `json:"thresholds_used"`
	RegimeLevel          RegimeLevel             `json:"regime_level"`
	RegimeShift          bool                    `json:"regime_shift"`
	InsufficientData     bool                    `json:"insufficient_data"`
	InsufficientReason   string                  `json:"insufficient_reason,omitempty"`
	AvailableWeight      float64                 `json:"available_weight"`
	Contributions        []IndicatorContribution `json:"contributions"`
}

// Key returns the idempotency key of the score.
func (s CompositeScore) Key() ScoreKey {
	return ScoreKey{EntityID: s.EntityID, Timestamp: s.Timestamp}
}

// ScoreKey identifies one (entity, timestamp) pair.
type ScoreKey struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Less orders keys by entity then timestamp.
func (k ScoreKey) Less(o ScoreKey) bool {
	if k.EntityID != o.EntityID {
		return k.EntityID < o.EntityID
	}
	return k.Timestamp.Before(o.Timestamp)
}

// TrendDirection summarises recent score history for reporting.
type TrendDirection string

const (
	TrendImproving     TrendDirection = "IMPROVING"
	TrendDeteriorating TrendDirection = "DETERIORATING"
	TrendStable        TrendDirection = "STABLE"
	TrendUnknown       TrendDirection = "UNKNOWN"
)

// Trend is a read-only report over stored score history.
type Trend struct {
	EntityID  string
	Direction TrendDirection
	Slope     float64 // adjusted score units per observation
	Points    int
	Latest    *CompositeScore
}
