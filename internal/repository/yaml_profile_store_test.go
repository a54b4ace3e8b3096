package repository

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/scoring"
)

const testProfiles = `
profiles:
  - id: equity_technical
    indicators:
      - {name: rsi, weight: 0.5}
      - {name: macd, weight: 0.5}
  - id: economic_health
    kind: health
    indicators:
      - {name: gdp, series: GDPC1, weight: 0.6, group: Growth, transform: yoy}
      - {name: unemployment, series: UNRATE, weight: 0.4, group: Labor, inverted: true}
`

func TestParseProfiles(t *testing.T) {
	s, err := ParseProfiles([]byte(testProfiles))
	require.NoError(t, err)
	assert.Equal(t, []string{"economic_health", "equity_technical"}, s.IDs())

	p, err := s.Profile("economic_health")
	require.NoError(t, err)
	assert.Equal(t, scoring.KindHealth, p.Kind())
	ind, ok := p.Indicator("gdp")
	require.True(t, ok)
	assert.Equal(t, "GDPC1", ind.SeriesFor("US"))

	w, err := s.GetWeights("equity_technical")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"rsi": 0.5, "macd": 0.5}, w)

	_, err = s.Profile("nope")
	assert.True(t, errors.Is(err, models.ErrProfileNotFound))
}

func TestParseProfilesRejectsBadWeights(t *testing.T) {
	_, err := ParseProfiles([]byte(`
profiles:
  - id: bad
    indicators:
      - {name: a, weight: 0.5}
      - {name: b, weight: 0.35}
`))
	var werr *models.InvalidWeightConfigError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "bad", werr.ProfileID)
	assert.InDelta(t, 0.85, werr.Sum, 1e-9)
}

func TestParseProfilesRejectsDuplicates(t *testing.T) {
	_, err := ParseProfiles([]byte(`
profiles:
  - id: p
    indicators: [{name: a, weight: 1}]
  - id: p
    indicators: [{name: a, weight: 1}]
`))
	assert.True(t, errors.Is(err, models.ErrInvalidProfile))

	_, err = ParseProfiles([]byte("profiles: []"))
	assert.Error(t, err)
}

func TestLoadShippedProfiles(t *testing.T) {
	s, err := LoadProfiles(filepath.Join("..", "..", "config", "profiles.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"economic_health", "equity_technical"}, s.IDs())

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
