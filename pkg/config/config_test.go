package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, BackendMemory, c.Backend.Type)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 5*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, 4, c.Scoring.Workers)
	assert.Equal(t, "1d", c.Scoring.Step)
	assert.Equal(t, 20, c.Scoring.Regime.MinPoints)
	assert.Equal(t, 40.0, c.Scoring.Regime.HighFrom)
	assert.Equal(t, 5432, c.Postgres.Port)
	assert.Equal(t, -1, c.Kafka.Producer.RequiredAcks)
	assert.Equal(t, "finsignal.recompute", c.Kafka.Consumer.Topic)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
backend:
  type: clickhouse
clickhouse:
  host: ch.internal
scoring:
  workers: 16
  lookback: 720h
  regime:
    crisis_above: 50
entities: [AAPL, MSFT]
`))
	require.NoError(t, err)
	assert.Equal(t, BackendClickHouse, c.Backend.Type)
	assert.Equal(t, 16, c.Scoring.Workers)
	assert.Equal(t, 720*time.Hour, c.Scoring.Lookback)
	assert.Equal(t, 50.0, c.Scoring.Regime.CrisisAbove)
	assert.Equal(t, 20.0, c.Scoring.Regime.LowBelow, "untouched fields keep defaults")
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Entities)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown backend", "backend: {type: sqlite}", "Config.Backend.Type must be one of"},
		{"zero workers", "scoring: {workers: 0}", "Config.Scoring.Workers must be at least 1"},
		{"bad log level", "logging: {level: loud}", "Config.Logging.Level must be one of"},
		{"kafka without brokers", "kafka: {enabled: true}", "kafka.brokers"},
		{"redis without addrs", "redis: {enabled: true}", "redis.addrs"},
		{"publish without kafka", "scoring: {publish: true}", "scoring.publish"},
		{"unordered regime", "scoring: {regime: {low_below: 50}}", "scoring.regime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidationErrorCarriesCodes(t *testing.T) {
	_, err := Parse([]byte("scoring: {workers: 0}"))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "ERR_MIN", verr.Fields[0].Code)
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	env := map[string]string{
		"BACKEND":         "postgres",
		"KAFKA_BROKERS":   "k1:9092, k2:9092,",
		"ENTITIES":        "AAPL,TSLA",
		"SCORING_WORKERS": "8",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(t, c.applyEnv(lookup))
	assert.Equal(t, BackendPostgres, c.Backend.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, []string{"AAPL", "TSLA"}, c.Entities)
	assert.Equal(t, 8, c.Scoring.Workers)

	env["SCORING_WORKERS"] = "many"
	assert.Error(t, c.applyEnv(lookup))
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o600))
	t.Setenv("LOG_LEVEL", "debug")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, "debug", c.Logging.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
