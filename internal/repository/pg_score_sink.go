package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// PGConn is the subset of *pgxpool.Pool used by PGScoreSink.
type PGConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGScoreSink stores scores in PostgreSQL, one row per
// (profile, entity, timestamp).
type PGScoreSink struct {
	conn PGConn
	now  func() time.Time
}

var (
	_ domrepo.CompositeScoreSink = (*PGScoreSink)(nil)
	_ domrepo.ScoreHistoryReader = (*PGScoreSink)(nil)
)

func NewPGScoreSink(conn PGConn) *PGScoreSink {
	return &PGScoreSink{conn: conn, now: time.Now}
}

const upsertScoreSQL = `
INSERT INTO composite_scores (profile_id, profile_version, entity_id, ts, score,
	classification, strength, sufficient, reason, regime, payload, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (profile_id, entity_id, ts) DO UPDATE SET
	profile_version = EXCLUDED.profile_version,
	score           = EXCLUDED.score,
	classification  = EXCLUDED.classification,
	strength        = EXCLUDED.strength,
	sufficient      = EXCLUDED.sufficient,
	reason          = EXCLUDED.reason,
	regime          = EXCLUDED.regime,
	payload         = EXCLUDED.payload,
	computed_at     = EXCLUDED.computed_at`

const upsertHealthSQL = `
INSERT INTO health_scores (profile_id, profile_version, entity_id, ts, overall,
	grade, ci_lower, ci_upper, payload, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (profile_id, entity_id, ts) DO UPDATE SET
	profile_version = EXCLUDED.profile_version,
	overall         = EXCLUDED.overall,
	grade           = EXCLUDED.grade,
	ci_lower        = EXCLUDED.ci_lower,
	ci_upper        = EXCLUDED.ci_upper,
	payload         = EXCLUDED.payload,
	computed_at     = EXCLUDED.computed_at`

const historySQL = `
SELECT payload FROM composite_scores
WHERE entity_id = $1 AND ts >= $2 AND ts <= $3
ORDER BY ts ASC, profile_id ASC`

func (s *PGScoreSink) Upsert(ctx context.Context, sc models.CompositeScore) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}
	_, err = s.conn.Exec(ctx, upsertScoreSQL,
		sc.ProfileID, sc.ProfileVersion, sc.EntityID, sc.Timestamp.UTC(), sc.AdjustedScore,
		string(sc.Classification), sc.Strength, !sc.InsufficientData, sc.InsufficientReason,
		string(sc.RegimeLevel), payload, s.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert score %s@%s: %w", sc.EntityID, sc.Timestamp.Format(time.RFC3339), err)
	}
	return nil
}

func (s *PGScoreSink) UpsertHealth(ctx context.Context, hs models.HealthScore) error {
	payload, err := json.Marshal(hs)
	if err != nil {
		return fmt.Errorf("marshal health score: %w", err)
	}
	var lower, upper *float64
	if hs.Interval != nil {
		lower, upper = &hs.Interval.Lower, &hs.Interval.Upper
	}
	_, err = s.conn.Exec(ctx, upsertHealthSQL,
		hs.ProfileID, hs.ProfileVersion, hs.EntityID, hs.Timestamp.UTC(), hs.Overall,
		string(hs.Grade), lower, upper, payload, s.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert health %s@%s: %w", hs.EntityID, hs.Timestamp.Format(time.RFC3339), err)
	}
	return nil
}

func (s *PGScoreSink) History(ctx context.Context, entityID string, from, to time.Time) ([]models.CompositeScore, error) {
	rows, err := s.conn.Query(ctx, historySQL, entityID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return decodePayloads(func(dst *string) error { return rows.Scan(dst) }, rows.Next, rows.Err)
}
