package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

func series(vals ...float64) []models.Observation {
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Observation, len(vals))
	for i, v := range vals {
		out[i] = models.Observation{SeriesID: "x", Timestamp: base.AddDate(0, i, 0), Value: v}
	}
	return out
}

func TestParseTransform(t *testing.T) {
	tr, err := ParseTransform("")
	require.NoError(t, err)
	assert.Equal(t, Level, tr)

	tr, err = ParseTransform("yoy")
	require.NoError(t, err)
	assert.Equal(t, YoY, tr)

	_, err = ParseTransform("cubic")
	assert.Error(t, err)
}

func TestLevelCopies(t *testing.T) {
	in := series(1, 2, 3)
	out := Apply(Level, in)
	out[0].Value = 99
	assert.Equal(t, 1.0, in[0].Value)
}

func TestLogReturnSkipsNonPositive(t *testing.T) {
	out := Apply(LogReturn, series(100, 0, 110, 121))
	require.Len(t, out, 1)
	assert.InDelta(t, math.Log(1.1), out[0].Value, 1e-12)
	assert.Equal(t, series(100, 0, 110, 121)[3].Timestamp, out[0].Timestamp)
}

func TestMoM(t *testing.T) {
	out := Apply(MoM, series(100, 110, 0, 5))
	require.Len(t, out, 2)
	assert.InDelta(t, 10.0, out[0].Value, 1e-9)
	assert.InDelta(t, -100.0, out[1].Value, 1e-9)
}

func TestYoYNeedsTwelveLags(t *testing.T) {
	vals := make([]float64, 13)
	for i := range vals {
		vals[i] = 100
	}
	vals[12] = 103
	out := Apply(YoY, series(vals...))
	require.Len(t, out, 1)
	assert.InDelta(t, 3.0, out[0].Value, 1e-9)
	assert.Nil(t, Apply(YoY, series(vals[:12]...)))
}

func TestAnnualized3M(t *testing.T) {
	out := Apply(Annualized3M, series(100, 100, 100, 101))
	require.Len(t, out, 1)
	assert.InDelta(t, (math.Pow(1.01, 4)-1)*100, out[0].Value, 1e-9)
}

func TestRealizedVol(t *testing.T) {
	vals := make([]float64, 25)
	for i := range vals {
		vals[i] = 100
	}
	out := Apply(RealizedVol, series(vals...))
	require.Len(t, out, 5)
	for _, o := range out {
		assert.Equal(t, 0.0, o.Value)
	}
}
