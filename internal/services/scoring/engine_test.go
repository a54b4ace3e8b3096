package scoring

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/stats"
)

var scoredAt = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func zp(v float64) *float64 { return &v }

func sig(name string, z *float64) models.NormalizedSignal {
	s := models.NormalizedSignal{SeriesID: "AAPL:" + name, IndicatorName: name, Timestamp: scoredAt, ZScore: z}
	if z == nil {
		s.Reason = models.ReasonInsufficientData
	}
	return s
}

func normalRegime() models.RegimeState {
	return models.RegimeState{Level: models.RegimeNormal, DetectedAt: scoredAt}
}

func TestBand(t *testing.T) {
	tests := []struct{ z, want float64 }{
		{3, 1}, {-3, -1}, {2.58, 0.75}, {2.0, 0.75}, {-2.0, -0.75},
		{1.96, 0.5}, {1.5, 0.5}, {-1.5, -0.5}, {1.0, 0.25}, {0.8, 0.2}, {0, 0},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, band(tc.z), 1e-12, "z=%v", tc.z)
	}
}

func TestScoreDominantIndicatorBuys(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 50
	}
	values[19] = 70
	obs := make([]models.Observation, len(values))
	for i, v := range values {
		obs[i] = models.Observation{SeriesID: "AAPL:rsi", Timestamp: scoredAt.AddDate(0, 0, i-19), Value: v}
	}
	window := stats.BuildWindowStats("AAPL:rsi", "rsi", obs, stats.WithWindow(20))
	assert.InDelta(t, 51.0, window.Mean, 1e-9)
	require.Greater(t, window.StdDev, 0.0)

	rsi := stats.NormalizeLatest("AAPL:rsi", "rsi", obs, scoredAt, stats.WithWindow(20))
	require.NotNil(t, rsi.ZScore)
	assert.Greater(t, *rsi.ZScore, 2.0)

	e := NewEngine(mustCompile(t, equityConfig()))
	out, err := e.Score(ScoreInput{
		EntityID:  "AAPL",
		Timestamp: scoredAt,
		Signals:   []models.NormalizedSignal{rsi, sig("macd", nil), sig("atr", nil)},
		Regime:    normalRegime(),
	})
	require.NoError(t, err)
	assert.Contains(t, []models.Classification{models.Buy, models.StrongBuy}, out.Classification)
	assert.False(t, out.InsufficientData)
	assert.Equal(t, 1.0, out.VolatilityMultiplier)
	assert.InDelta(t, 0.25, out.AvailableWeight, 1e-12)
}

func TestScoreAllNullIsInsufficientHold(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	var signals []models.NormalizedSignal
	for _, name := range []string{"rsi", "macd", "momentum", "bollinger", "volume", "atr"} {
		signals = append(signals, sig(name, nil))
	}
	out, err := e.Score(ScoreInput{EntityID: "AAPL", Timestamp: scoredAt, Signals: signals, Regime: normalRegime()})
	require.NoError(t, err)
	assert.Equal(t, models.Hold, out.Classification)
	assert.Equal(t, 0.0, out.Strength)
	assert.True(t, out.InsufficientData)
	assert.Len(t, out.Contributions, 6)
}

func TestScoreNullOrderInvariance(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	signals := []models.NormalizedSignal{
		sig("rsi", zp(1.3)),
		sig("macd", nil),
		sig("momentum", zp(-0.4)),
		sig("bollinger", nil),
		sig("volume", zp(2.2)),
		sig("atr", zp(0.9)),
	}
	want, err := e.Score(ScoreInput{EntityID: "AAPL", Timestamp: scoredAt, Signals: signals, Regime: normalRegime()})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]models.NormalizedSignal(nil), signals...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := e.Score(ScoreInput{EntityID: "AAPL", Timestamp: scoredAt, Signals: shuffled, Regime: normalRegime()})
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(want.AdjustedScore), math.Float64bits(got.AdjustedScore))
		assert.Equal(t, want, got)
	}
}

func TestScoreIdempotent(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	in := ScoreInput{
		EntityID:  "MSFT",
		Timestamp: scoredAt,
		Signals:   []models.NormalizedSignal{sig("rsi", zp(-2.1)), sig("macd", zp(-1.1)), sig("atr", zp(2.5))},
		Regime:    models.RegimeState{Level: models.RegimeHigh, ShiftDetected: true},
	}
	a, err := e.Score(in)
	require.NoError(t, err)
	b, err := e.Score(in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, math.Float64bits(a.RawWeightedScore), math.Float64bits(b.RawWeightedScore))
}

func TestScoreRenormalizesWeights(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	out, err := e.Score(ScoreInput{
		EntityID:  "AAPL",
		Timestamp: scoredAt,
		Signals:   []models.NormalizedSignal{sig("rsi", zp(1.5)), sig("macd", zp(-1.5))},
		Regime:    normalRegime(),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out.RawWeightedScore, 1e-15)
	assert.InDelta(t, 0.5, out.AvailableWeight, 1e-15)
	for _, c := range out.Contributions {
		if c.Indicator == "rsi" || c.Indicator == "macd" {
			assert.InDelta(t, 0.5, c.EffectiveWeight, 1e-15)
		} else {
			assert.Zero(t, c.EffectiveWeight)
		}
	}
}

func TestScoreInvertedIndicator(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	out, err := e.Score(ScoreInput{
		EntityID:  "AAPL",
		Timestamp: scoredAt,
		Signals:   []models.NormalizedSignal{sig("bollinger", zp(3))},
		Regime:    normalRegime(),
	})
	require.NoError(t, err)
	assert.Equal(t, -1.0, out.RawWeightedScore)
	assert.Equal(t, models.StrongSell, out.Classification)
}

func TestVolatilityMultiplier(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	score := func(volZ float64) models.CompositeScore {
		out, err := e.Score(ScoreInput{
			EntityID:  "AAPL",
			Timestamp: scoredAt,
			Signals:   []models.NormalizedSignal{sig("rsi", zp(-1.5)), sig("atr", zp(volZ))},
			Regime:    normalRegime(),
		})
		require.NoError(t, err)
		return out
	}
	assert.InDelta(t, 1.3, score(3).VolatilityMultiplier, 1e-12)
	assert.InDelta(t, 1.3, score(-3).VolatilityMultiplier, 1e-12)
	assert.Equal(t, 1.5, score(40).VolatilityMultiplier)

	out := score(-3)
	assert.Less(t, out.RawWeightedScore, 0.0)
	assert.Less(t, out.AdjustedScore, out.RawWeightedScore, "magnitude grows, sign kept")
}

func TestScoreNonFiniteIsInsufficient(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	for _, z := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		out, err := e.Score(ScoreInput{
			EntityID:  "AAPL",
			Timestamp: scoredAt,
			Signals:   []models.NormalizedSignal{sig("rsi", zp(3)), sig("macd", zp(z))},
			Regime:    normalRegime(),
		})
		require.NoError(t, err)
		assert.True(t, out.InsufficientData)
		assert.Equal(t, models.Hold, out.Classification)
		assert.Equal(t, 0.0, out.Strength)
		assert.Equal(t, models.ErrNumericInstability.Error(), out.InsufficientReason)
	}
}

func TestScoreDuplicateIndicator(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	_, err := e.Score(ScoreInput{
		EntityID:  "AAPL",
		Timestamp: scoredAt,
		Signals:   []models.NormalizedSignal{sig("rsi", zp(1)), sig("rsi", zp(2))},
	})
	assert.ErrorIs(t, err, models.ErrDuplicateIndicator)
}

func TestScoreCrisisNeedsMoreConviction(t *testing.T) {
	e := NewEngine(mustCompile(t, equityConfig()))
	in := ScoreInput{
		EntityID:  "AAPL",
		Timestamp: scoredAt,
		Signals:   []models.NormalizedSignal{sig("rsi", zp(1.5)), sig("macd", zp(0.8))},
		Regime:    normalRegime(),
	}
	normal, err := e.Score(in)
	require.NoError(t, err)
	in.Regime = models.RegimeState{Level: models.RegimeCrisis}
	crisis, err := e.Score(in)
	require.NoError(t, err)

	assert.Equal(t, models.Buy, normal.Classification)
	assert.Equal(t, models.Hold, crisis.Classification)
	assert.Equal(t, models.RegimeCrisis, crisis.RegimeLevel)
}
