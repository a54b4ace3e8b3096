package models

import "time"

// Grade is the ordinal band of a composite health score.
type Grade string

const (
	GradeExcellent    Grade = "EXCELLENT"
	GradeStrong       Grade = "STRONG"
	GradeModerate     Grade = "MODERATE"
	GradeWeak         Grade = "WEAK"
	GradeCritical     Grade = "CRITICAL"
	GradeInsufficient Grade = "INSUFFICIENT_DATA"
)

// HealthComponent is one 0-100 component of a health index. Score is nil when
// the component could not be computed.
type HealthComponent struct {
	Name             string       `json:"name"`
	Group            string       `json:"group"`
	Score            *float64     `json:"score"`
	ConfiguredWeight float64      `json:"configured_weight"`
	EffectiveWeight  float64      `json:"effective_weight"`
	Reason           SignalReason `json:"reason,omitempty"`
}

// GroupScore aggregates the components of one category.
type GroupScore struct {
	Group       string   `json:"group"`
	Score       *float64 `json:"score"`
	WeightShare float64  `json:"weight_share"`
	Components  int      `json:"components"`
	Available   int      `json:"available"`
}

// ConfidenceInterval is an approximate interval around the overall score.
type ConfidenceInterval struct {
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
	Margin float64 `json:"margin"`
	Level  float64 `json:"level"`
}

// HealthScore is the composite result of a multi-component health index.
type HealthScore struct {
	EntityID         string              `json:"entity_id"`
	Timestamp        time.Time           `json:"timestamp"`
	ProfileID        string              `json:"profile_id"`
	ProfileVersion   string              `json:"profile_version"`
	Overall          *float64            `json:"overall"`
	Grade            Grade               `json:"grade"`
	Groups           []GroupScore        `json:"groups"`
	Interval         *ConfidenceInterval `json:"interval,omitempty"`
	InsufficientData bool                `json:"insufficient_data"`
	Components       []HealthComponent   `json:"components"`
}

// Key returns the idempotency key of the score.
func (s HealthScore) Key() ScoreKey {
	return ScoreKey{EntityID: s.EntityID, Timestamp: s.Timestamp}
}
