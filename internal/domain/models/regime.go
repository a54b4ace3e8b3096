package models

import "time"

// RegimeLevel classifies the volatility environment.
type RegimeLevel string

const (
	RegimeLow    RegimeLevel = "LOW"
	RegimeNormal RegimeLevel = "NORMAL"
	RegimeHigh   RegimeLevel = "HIGH"
	RegimeCrisis RegimeLevel = "CRISIS"
)

// RegimeState is derived fresh from recent volatility data for each evaluation.
type RegimeState struct {
	Level            RegimeLevel
	DetectedAt       time.Time
	TriggeringSeries string
	CurrentLevel     *float64
	RecentMean       *float64
	PriorMean        *float64
	ShiftDelta       *float64
	ShiftDetected    bool
	Fallback         bool   // true when the series was missing or too short
	Reason           string // populated on fallback
}

// NormalRegime is the fallback state used when volatility data is unavailable.
func NormalRegime(at time.Time, reason string) RegimeState {
	return RegimeState{Level: RegimeNormal, DetectedAt: at, Fallback: true, Reason: reason}
}
