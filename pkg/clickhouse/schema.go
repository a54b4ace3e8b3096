package clickhouse

import "fmt"

// Table names.
const (
	ObservationsTable = "observations"
	ScoresTable       = "composite_scores"
	HealthTable       = "health_scores"
)

// Schema returns the DDL for the FinSignal tables in database db.
// Score tables are ReplacingMergeTree keyed by (profile, entity, timestamp)
// so a recompute replaces the earlier row.
func Schema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	series_id String,
	ts DateTime64(3, 'UTC'),
	value Float64,
	ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested_at)
ORDER BY (series_id, ts)`, db, ObservationsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	profile_id LowCardinality(String),
	profile_version String,
	entity_id String,
	ts DateTime64(3, 'UTC'),
	score Float64,
	classification LowCardinality(String),
	strength Float64,
	sufficient UInt8,
	reason String,
	regime LowCardinality(String),
	payload String,
	computed_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(computed_at)
ORDER BY (profile_id, entity_id, ts)`, db, ScoresTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	profile_id LowCardinality(String),
	profile_version String,
	entity_id String,
	ts DateTime64(3, 'UTC'),
	overall Nullable(Float64),
	grade LowCardinality(String),
	ci_lower Nullable(Float64),
	ci_upper Nullable(Float64),
	payload String,
	computed_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(computed_at)
ORDER BY (profile_id, entity_id, ts)`, db, HealthTable),
	}
}
