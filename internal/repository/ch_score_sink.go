package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgch "FinSignal/pkg/clickhouse"
)

// CHScoreSink stores scores in ReplacingMergeTree tables. The full result is
// kept as JSON in payload; the flat columns serve analytical queries.
type CHScoreSink struct {
	db          *sql.DB
	scoreTable  string
	healthTable string
	now         func() time.Time
}

var (
	_ domrepo.CompositeScoreSink = (*CHScoreSink)(nil)
	_ domrepo.ScoreHistoryReader = (*CHScoreSink)(nil)
)

func NewCHScoreSink(ch *pkgch.Client) *CHScoreSink {
	return &CHScoreSink{
		db:          ch.DB(),
		scoreTable:  ch.Database() + "." + pkgch.ScoresTable,
		healthTable: ch.Database() + "." + pkgch.HealthTable,
		now:         time.Now,
	}
}

func (s *CHScoreSink) Upsert(ctx context.Context, sc models.CompositeScore) error {
	args, err := compositeRow(sc, s.now())
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (profile_id, profile_version, entity_id, ts, score,
		classification, strength, sufficient, reason, regime, payload, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.scoreTable)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert score %s@%s: %w", sc.EntityID, sc.Timestamp.Format(time.RFC3339), err)
	}
	return nil
}

func (s *CHScoreSink) UpsertHealth(ctx context.Context, hs models.HealthScore) error {
	args, err := healthRow(hs, s.now())
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (profile_id, profile_version, entity_id, ts, overall,
		grade, ci_lower, ci_upper, payload, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.healthTable)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert health %s@%s: %w", hs.EntityID, hs.Timestamp.Format(time.RFC3339), err)
	}
	return nil
}

func (s *CHScoreSink) History(ctx context.Context, entityID string, from, to time.Time) ([]models.CompositeScore, error) {
	q := fmt.Sprintf(`SELECT payload FROM %s FINAL
		WHERE entity_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, profile_id ASC`, s.scoreTable)
	rows, err := s.db.QueryContext(ctx, q, entityID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return decodePayloads(func(dst *string) error { return rows.Scan(dst) }, rows.Next, rows.Err)
}

func compositeRow(sc models.CompositeScore, computedAt time.Time) ([]interface{}, error) {
	payload, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("marshal score: %w", err)
	}
	var sufficient uint8 = 1
	if sc.InsufficientData {
		sufficient = 0
	}
	return []interface{}{
		sc.ProfileID, sc.ProfileVersion, sc.EntityID, sc.Timestamp.UTC(), sc.AdjustedScore,
		string(sc.Classification), sc.Strength, sufficient, sc.InsufficientReason,
		string(sc.RegimeLevel), string(payload), computedAt.UTC(),
	}, nil
}

func healthRow(hs models.HealthScore, computedAt time.Time) ([]interface{}, error) {
	payload, err := json.Marshal(hs)
	if err != nil {
		return nil, fmt.Errorf("marshal health score: %w", err)
	}
	var lower, upper *float64
	if hs.Interval != nil {
		lower, upper = &hs.Interval.Lower, &hs.Interval.Upper
	}
	return []interface{}{
		hs.ProfileID, hs.ProfileVersion, hs.EntityID, hs.Timestamp.UTC(), hs.Overall,
		string(hs.Grade), lower, upper, string(payload), computedAt.UTC(),
	}, nil
}

// decodePayloads drains a result set of JSON payload columns.
func decodePayloads(scan func(*string) error, next func() bool, rowsErr func() error) ([]models.CompositeScore, error) {
	var out []models.CompositeScore
	for next() {
		var payload string
		if err := scan(&payload); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		var sc models.CompositeScore
		if err := json.Unmarshal([]byte(payload), &sc); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		out = append(out, sc)
	}
	if err := rowsErr(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
