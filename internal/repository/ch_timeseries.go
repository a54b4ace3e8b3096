package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgch "FinSignal/pkg/clickhouse"
	applogger "FinSignal/pkg/logger"
)

const observationChunk = 2000

// CHTimeSeries reads observations from ClickHouse. It also serves the regime
// volatility series, read from the same table.
type CHTimeSeries struct {
	db           *sql.DB
	table        string
	regimeSeries string
	l            *applogger.Logger
}

var (
	_ domrepo.TimeSeriesProvider   = (*CHTimeSeries)(nil)
	_ domrepo.RegimeSignalProvider = (*CHTimeSeries)(nil)
)

func NewCHTimeSeries(ch *pkgch.Client, regimeSeries string, l *applogger.Logger) *CHTimeSeries {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHTimeSeries{
		db:           ch.DB(),
		table:        ch.Database() + "." + pkgch.ObservationsTable,
		regimeSeries: regimeSeries,
		l:            l,
	}
}

func (s *CHTimeSeries) GetObservations(ctx context.Context, seriesID string, from, to time.Time) ([]models.Observation, error) {
	start := time.Now()
	q := fmt.Sprintf(`
		SELECT ts, value
		FROM %s FINAL
		WHERE series_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`, s.table)
	obs, err := s.query(ctx, seriesID, q, seriesID, from, to)
	if err != nil {
		s.l.Error("clickhouse get_observations failed",
			applogger.String("series", seriesID),
			applogger.Error(err))
		return nil, &models.ProviderUnavailableError{Provider: "clickhouse", SeriesID: seriesID, Err: err}
	}
	s.l.Debug("clickhouse get_observations ok",
		applogger.String("series", seriesID),
		applogger.Int("rows", len(obs)),
		applogger.Duration("duration_ms", time.Since(start)))
	return models.NormalizeObservations(obs), nil
}

func (s *CHTimeSeries) GetVolatilitySeries(ctx context.Context, asOf time.Time, lookback int) ([]float64, error) {
	if lookback <= 0 {
		lookback = 1
	}
	q := fmt.Sprintf(`
		SELECT ts, value FROM (
			SELECT ts, value
			FROM %s FINAL
			WHERE series_id = ? AND ts <= ?
			ORDER BY ts DESC
			LIMIT ?
		)
		ORDER BY ts ASC`, s.table)
	obs, err := s.query(ctx, s.regimeSeries, q, s.regimeSeries, asOf, lookback)
	if err != nil {
		return nil, &models.ProviderUnavailableError{Provider: "clickhouse", SeriesID: s.regimeSeries, Err: err}
	}
	return models.Values(models.NormalizeObservations(obs)), nil
}

func (s *CHTimeSeries) query(ctx context.Context, seriesID, q string, args ...interface{}) ([]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 256)
	for rows.Next() {
		o := models.Observation{SeriesID: seriesID}
		if err := rows.Scan(&o.Timestamp, &o.Value); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Append writes observations in multi-row inserts. Re-sent points replace
// earlier ones once ClickHouse merges the parts.
func (s *CHTimeSeries) Append(ctx context.Context, obs []models.Observation) error {
	for start := 0; start < len(obs); start += observationChunk {
		end := start + observationChunk
		if end > len(obs) {
			end = len(obs)
		}
		q, args := observationInsert(s.table, obs[start:end])
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert observations: %w", err)
		}
	}
	return nil
}

func observationInsert(table string, obs []models.Observation) (string, []interface{}) {
	values := make([]string, 0, len(obs))
	args := make([]interface{}, 0, len(obs)*3)
	for _, o := range obs {
		if o.SeriesID == "" || o.Timestamp.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?)")
		args = append(args, o.SeriesID, o.Timestamp.UTC(), o.Value)
	}
	q := fmt.Sprintf("INSERT INTO %s (series_id, ts, value) VALUES %s", table, strings.Join(values, ","))
	return q, args
}
