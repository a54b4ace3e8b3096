package repository

import (
	"context"
	"time"

	"FinSignal/internal/domain/models"
)

// TimeSeriesProvider supplies ascending observations for a series.
type TimeSeriesProvider interface {
	GetObservations(ctx context.Context, seriesID string, from, to time.Time) ([]models.Observation, error)
}

// RegimeSignalProvider supplies the volatility index series used for regime
// detection, ending at asOf and holding at most lookback points.
type RegimeSignalProvider interface {
	GetVolatilitySeries(ctx context.Context, asOf time.Time, lookback int) ([]float64, error)
}

// WeightConfigStore returns raw indicator weights of a named profile.
type WeightConfigStore interface {
	GetWeights(profileID string) (map[string]float64, error)
}

// CompositeScoreSink persists results keyed by (EntityID, Timestamp).
// Writing the same key twice leaves a single row holding the last value.
type CompositeScoreSink interface {
	Upsert(ctx context.Context, score models.CompositeScore) error
	UpsertHealth(ctx context.Context, score models.HealthScore) error
}

// ScoreHistoryReader reads stored composite scores, oldest first.
type ScoreHistoryReader interface {
	History(ctx context.Context, entityID string, from, to time.Time) ([]models.CompositeScore, error)
}

// CheckpointStore persists batch progress and guards a job against
// concurrent runs.
type CheckpointStore interface {
	Load(ctx context.Context, jobID string) (models.Checkpoint, bool, error)
	Save(ctx context.Context, cp models.Checkpoint) error
	Clear(ctx context.Context, jobID string) error
	TryLock(ctx context.Context, jobID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, jobID string) error
}

// ScorePublisher announces freshly computed scores downstream.
type ScorePublisher interface {
	PublishScore(ctx context.Context, score models.CompositeScore) error
	PublishHealth(ctx context.Context, score models.HealthScore) error
	Close() error
}

type Metrics interface {
	RecordScore(profileID string, class models.Classification, strength float64)
	RecordHealth(profileID string, grade models.Grade)
	RecordInsufficient(profileID, reason string)
	RecordRegime(level models.RegimeLevel, shift bool)
	RecordEntityFailure(stage string)
	RecordLatency(op string, seconds float64)
	RecordCheckpoint(jobID string, completed int)
}
