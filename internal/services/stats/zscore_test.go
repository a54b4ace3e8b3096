package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

func okStats(mean, sd float64) models.RollingWindowStats {
	return models.RollingWindowStats{WindowSize: 20, Count: 20, Mean: mean, StdDev: sd, Status: models.WindowOK}
}

func TestNormalize(t *testing.T) {
	z, reason := Normalize(70, okStats(50, 10))
	require.NotNil(t, z)
	assert.Equal(t, 2.0, *z)
	assert.Equal(t, models.ReasonNone, reason)
}

func TestNormalizeValueAtMeanIsExactlyZero(t *testing.T) {
	w := Compute([]float64{0.1, 0.2, 0.7, 1.3, 2.9}, WithWindow(5))
	st := models.RollingWindowStats{Mean: w.Mean, StdDev: w.StdDev, Status: w.Status}
	z, _ := Normalize(w.Mean, st)
	require.NotNil(t, z)
	assert.Equal(t, uint64(0), math.Float64bits(*z))
}

func TestNormalizeUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		stats  models.RollingWindowStats
		reason models.SignalReason
	}{
		{"insufficient", 1, models.RollingWindowStats{Status: models.WindowInsufficient}, models.ReasonInsufficientData},
		{"degenerate", 50, models.RollingWindowStats{Status: models.WindowDegenerate, Mean: 50}, models.ReasonDegenerateVariance},
		{"zero stddev", 50, okStats(50, 0), models.ReasonDegenerateVariance},
		{"nan value", math.NaN(), okStats(0, 1), models.ReasonInvalidValue},
		{"inf value", math.Inf(1), okStats(0, 1), models.ReasonInvalidValue},
		{"overflowing z", math.MaxFloat64, okStats(-math.MaxFloat64, 1e-300), models.ReasonInvalidValue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			z, reason := Normalize(tc.value, tc.stats)
			assert.Nil(t, z)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestConstantWindowGivesNilZ(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]models.Observation, 20)
	for i := range obs {
		obs[i] = models.Observation{Timestamp: base.AddDate(0, 0, i), Value: 50}
	}
	sig := NormalizeLatest("s", "rsi", obs, base, WithWindow(20))
	assert.False(t, sig.Available())
	assert.Equal(t, models.ReasonDegenerateVariance, sig.Reason)
	assert.Equal(t, base.AddDate(0, 0, 19), sig.Timestamp)
}

func TestNormalizeLatestEmpty(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sig := NormalizeLatest("s", "rsi", nil, at)
	assert.Nil(t, sig.ZScore)
	assert.Equal(t, models.ReasonInsufficientData, sig.Reason)
	assert.Equal(t, at, sig.Timestamp)
}
