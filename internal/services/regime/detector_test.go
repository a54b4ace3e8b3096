package regime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

var asOf = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestLevelBoundaries(t *testing.T) {
	d := New(DefaultConfig())
	tests := []struct {
		v    float64
		want models.RegimeLevel
	}{
		{12, models.RegimeLow},
		{19.99, models.RegimeLow},
		{20, models.RegimeNormal},
		{39.99, models.RegimeNormal},
		{40, models.RegimeHigh},
		{45, models.RegimeHigh},
		{45.01, models.RegimeCrisis},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, d.Level(tc.v), "value %v", tc.v)
	}
}

func TestShiftDetectedWhileLevelNormal(t *testing.T) {
	d := New(DefaultConfig())
	series := append(flat(18, 30), flat(35, 30)...)
	st := d.Detect(series, asOf, "VIX")

	assert.Equal(t, models.RegimeNormal, st.Level)
	assert.True(t, st.ShiftDetected)
	require.NotNil(t, st.ShiftDelta)
	assert.Equal(t, 17.0, *st.ShiftDelta)
	assert.False(t, st.Fallback)
	assert.Equal(t, "VIX", st.TriggeringSeries)
	assert.Equal(t, asOf, st.DetectedAt)
}

func TestRelativeShift(t *testing.T) {
	d := New(DefaultConfig())
	st := d.Detect(append(flat(10, 30), flat(16, 30)...), asOf, "VIX")
	assert.True(t, st.ShiftDetected, "60 percent relative rise")
	assert.Equal(t, models.RegimeLow, st.Level)

	st = d.Detect(append(flat(30, 30), flat(35, 30)...), asOf, "VIX")
	assert.False(t, st.ShiftDetected)
}

func TestShortSeriesSkipsShift(t *testing.T) {
	d := New(DefaultConfig())
	st := d.Detect(append(flat(15, 20), flat(50, 10)...), asOf, "VIX")
	assert.Equal(t, models.RegimeCrisis, st.Level)
	assert.False(t, st.ShiftDetected)
	assert.Nil(t, st.ShiftDelta)
}

func TestFallbackToNormal(t *testing.T) {
	d := New(Config{})
	for _, series := range [][]float64{nil, flat(50, 5), {math.NaN(), math.Inf(1)}} {
		st := d.Detect(series, asOf, "VIX")
		assert.Equal(t, models.RegimeNormal, st.Level)
		assert.True(t, st.Fallback)
		assert.NotEmpty(t, st.Reason)
	}
}

func TestNonFinitePointsDiscarded(t *testing.T) {
	d := New(DefaultConfig())
	series := append(flat(25, 20), math.NaN())
	st := d.Detect(series, asOf, "VIX")
	require.NotNil(t, st.CurrentLevel)
	assert.Equal(t, 25.0, *st.CurrentLevel)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.HighFrom = 50
	assert.Error(t, cfg.Validate())
}
