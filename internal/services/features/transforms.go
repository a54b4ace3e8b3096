// Package features derives indicator series from raw observations before
// rolling statistics are taken.
package features

import (
	"fmt"
	"math"

	"FinSignal/internal/domain/models"
)

// Transform names accepted in profile configuration.
type Transform string

const (
	Level        Transform = "level"
	LogReturn    Transform = "log_return"
	MoM          Transform = "mom"
	YoY          Transform = "yoy"
	Annualized3M Transform = "annualized_3m"
	RealizedVol  Transform = "realized_vol"
)

// yoy compares against the value twelve periods back (monthly data).
const yoyLag = 12

// realizedVolWindow is the trailing window of log returns per volatility point.
const realizedVolWindow = 20

// ParseTransform validates a configured transform name. Empty means Level.
func ParseTransform(s string) (Transform, error) {
	switch t := Transform(s); t {
	case "":
		return Level, nil
	case Level, LogReturn, MoM, YoY, Annualized3M, RealizedVol:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transform %q", s)
	}
}

// Apply derives the transformed series from ascending observations. Points
// where the transform is undefined (missing lag, zero or negative base) are
// skipped rather than emitted as 0.
func Apply(t Transform, obs []models.Observation) []models.Observation {
	switch t {
	case "", Level:
		out := make([]models.Observation, len(obs))
		copy(out, obs)
		return out
	case LogReturn:
		return lagged(obs, 1, func(cur, base float64) (float64, bool) {
			if cur <= 0 || base <= 0 {
				return 0, false
			}
			return math.Log(cur / base), true
		})
	case MoM:
		return lagged(obs, 1, pctChange)
	case YoY:
		return lagged(obs, yoyLag, pctChange)
	case Annualized3M:
		return lagged(obs, 3, func(cur, base float64) (float64, bool) {
			if base <= 0 || cur < 0 {
				return 0, false
			}
			return (math.Pow(cur/base, 4) - 1) * 100, true
		})
	case RealizedVol:
		return realizedVol(obs, realizedVolWindow)
	default:
		return nil
	}
}

func pctChange(cur, base float64) (float64, bool) {
	if base == 0 {
		return 0, false
	}
	return (cur/base - 1) * 100, true
}

func lagged(obs []models.Observation, lag int, f func(cur, base float64) (float64, bool)) []models.Observation {
	if len(obs) <= lag {
		return nil
	}
	out := make([]models.Observation, 0, len(obs)-lag)
	for i := lag; i < len(obs); i++ {
		v, ok := f(obs[i].Value, obs[i-lag].Value)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, models.Observation{SeriesID: obs[i].SeriesID, Timestamp: obs[i].Timestamp, Value: v})
	}
	return out
}

// realizedVol emits the sample standard deviation of the trailing window of
// log returns, in percent, at each point where the window is full.
func realizedVol(obs []models.Observation, window int) []models.Observation {
	rets := Apply(LogReturn, obs)
	if len(rets) < window {
		return nil
	}
	out := make([]models.Observation, 0, len(rets)-window+1)
	for i := window - 1; i < len(rets); i++ {
		sum, sum2 := 0.0, 0.0
		for _, r := range rets[i-window+1 : i+1] {
			sum += r.Value
			sum2 += r.Value * r.Value
		}
		n := float64(window)
		mean := sum / n
		variance := (sum2 - n*mean*mean) / (n - 1)
		if variance < 0 {
			variance = 0
		}
		out = append(out, models.Observation{
			SeriesID:  rets[i].SeriesID,
			Timestamp: rets[i].Timestamp,
			Value:     math.Sqrt(variance) * 100,
		})
	}
	return out
}
