package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host            string        `yaml:"host" default:"localhost"`
	Port            int           `yaml:"port" default:"5432"`
	Database        string        `yaml:"database" default:"finsignal"`
	User            string        `yaml:"user" default:"finsignal"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslmode" default:"prefer"`
	MaxConns        int32         `yaml:"max_conns" default:"10"`
	MinConns        int32         `yaml:"min_conns" default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" default:"30m"`
}

// ConnString renders cfg as a postgres URL.
func (c Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Connect opens a pool, pings it and applies Schema.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return pool, nil
}

// Schema creates the score tables. Rows are unique per
// (profile, entity, timestamp); writers upsert on that key.
const Schema = `
CREATE TABLE IF NOT EXISTS composite_scores (
	profile_id      TEXT NOT NULL,
	profile_version TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	score           DOUBLE PRECISION NOT NULL,
	classification  TEXT NOT NULL,
	strength        DOUBLE PRECISION NOT NULL,
	sufficient      BOOLEAN NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	regime          TEXT NOT NULL DEFAULT '',
	payload         JSONB NOT NULL,
	computed_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (profile_id, entity_id, ts)
);

CREATE INDEX IF NOT EXISTS idx_composite_scores_entity_ts ON composite_scores (entity_id, ts);

CREATE TABLE IF NOT EXISTS health_scores (
	profile_id      TEXT NOT NULL,
	profile_version TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	overall         DOUBLE PRECISION,
	grade           TEXT NOT NULL,
	ci_lower        DOUBLE PRECISION,
	ci_upper        DOUBLE PRECISION,
	payload         JSONB NOT NULL,
	computed_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (profile_id, entity_id, ts)
);
`
