package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/features"
	"FinSignal/internal/services/scoring"
	"FinSignal/internal/services/stats"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
)

// ProfileStore returns compiled scoring profiles by ID.
type ProfileStore interface {
	Profile(id string) (*scoring.Profile, error)
}

// Failure stages reported in metrics and batch reports.
const (
	StageFetch   = "fetch"
	StageScore   = "score"
	StagePersist = "persist"
	StagePublish = "publish"
)

// StageError tags an item failure with the pipeline stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// Result holds the score produced for one item. Exactly one field is set,
// depending on the profile kind.
type Result struct {
	Composite *models.CompositeScore
	Health    *models.HealthScore
}

// Insufficient reports whether the result lacked usable data.
func (r Result) Insufficient() bool {
	if r.Composite != nil {
		return r.Composite.InsufficientData
	}
	return r.Health != nil && r.Health.InsufficientData
}

// EntityScorer loads observations for every indicator of a profile and runs
// them through transforms, rolling statistics and the scorer. It performs no
// writes.
type EntityScorer struct {
	provider domrepo.TimeSeriesProvider
	lookback time.Duration
}

func NewEntityScorer(provider domrepo.TimeSeriesProvider, lookback time.Duration) *EntityScorer {
	return &EntityScorer{provider: provider, lookback: lookback}
}

// Signals builds one normalized signal per profile indicator as of at.
// Only observations at or before at are used.
func (s *EntityScorer) Signals(ctx context.Context, p *scoring.Profile, entityID string, at time.Time) ([]models.NormalizedSignal, error) {
	from := time.Time{}
	if s.lookback > 0 {
		from = at.Add(-s.lookback)
	}
	opts := []stats.Option{stats.WithWindow(p.Window()), stats.WithMinPoints(p.MinPoints())}

	out := make([]models.NormalizedSignal, 0, len(p.Indicators()))
	for _, ind := range p.Indicators() {
		series := ind.SeriesFor(entityID)
		obs, err := s.provider.GetObservations(ctx, series, from, at)
		if err != nil {
			return nil, &StageError{Stage: StageFetch, Err: fmt.Errorf("series %s: %w", series, err)}
		}
		obs = models.UpTo(models.NormalizeObservations(obs), at)
		obs = features.Apply(ind.Transform, obs)
		out = append(out, stats.NormalizeLatest(series, ind.Name, obs, at, opts...))
	}
	return out, nil
}

// Score computes the result for entityID at at under regime.
func (s *EntityScorer) Score(ctx context.Context, p *scoring.Profile, entityID string, at time.Time, regime models.RegimeState) (Result, error) {
	signals, err := s.Signals(ctx, p, entityID, at)
	if err != nil {
		return Result{}, err
	}
	switch p.Kind() {
	case scoring.KindHealth:
		hs, err := scoring.NewHealthScorer(p).Score(scoring.HealthInput{EntityID: entityID, Timestamp: at, Signals: signals})
		if err != nil {
			return Result{}, &StageError{Stage: StageScore, Err: err}
		}
		return Result{Health: &hs}, nil
	default:
		cs, err := scoring.NewEngine(p).Score(scoring.ScoreInput{EntityID: entityID, Timestamp: at, Signals: signals, Regime: regime})
		if err != nil {
			return Result{}, &StageError{Stage: StageScore, Err: err}
		}
		return Result{Composite: &cs}, nil
	}
}

// Pipeline scores one item end to end: score, upsert, optional publish and
// metrics.
type Pipeline struct {
	scorer    *EntityScorer
	sink      domrepo.CompositeScoreSink
	publisher domrepo.ScorePublisher
	metrics   domrepo.Metrics
	log       *applogger.Logger
}

func NewPipeline(
	scorer *EntityScorer,
	sink domrepo.CompositeScoreSink,
	publisher domrepo.ScorePublisher,
	m domrepo.Metrics,
	log *applogger.Logger,
) *Pipeline {
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &Pipeline{scorer: scorer, sink: sink, publisher: publisher, metrics: m, log: log}
}

// Process scores and stores entityID at at. A publish failure is logged and
// returned after the score has been stored.
func (p *Pipeline) Process(ctx context.Context, prof *scoring.Profile, entityID string, at time.Time, regime models.RegimeState) (Result, error) {
	start := time.Now()
	res, err := p.scorer.Score(ctx, prof, entityID, at, regime)
	if err != nil {
		p.recordFailure(err)
		return Result{}, err
	}

	if err := p.persist(ctx, res); err != nil {
		err = &StageError{Stage: StagePersist, Err: err}
		p.recordFailure(err)
		return res, err
	}
	p.record(prof.ID(), res)
	p.metrics.RecordLatency("score_entity", time.Since(start).Seconds())

	if p.publisher != nil {
		if err := p.publish(ctx, res); err != nil {
			err = &StageError{Stage: StagePublish, Err: err}
			p.recordFailure(err)
			p.log.Warn("publish score failed",
				applogger.String("entity", entityID),
				applogger.Time("at", at),
				applogger.Error(err))
			return res, err
		}
	}
	return res, nil
}

func (p *Pipeline) persist(ctx context.Context, res Result) error {
	if res.Composite != nil {
		return p.sink.Upsert(ctx, *res.Composite)
	}
	return p.sink.UpsertHealth(ctx, *res.Health)
}

func (p *Pipeline) publish(ctx context.Context, res Result) error {
	if res.Composite != nil {
		return p.publisher.PublishScore(ctx, *res.Composite)
	}
	return p.publisher.PublishHealth(ctx, *res.Health)
}

func (p *Pipeline) record(profileID string, res Result) {
	if c := res.Composite; c != nil {
		p.metrics.RecordScore(profileID, c.Classification, c.Strength)
		if c.InsufficientData {
			p.metrics.RecordInsufficient(profileID, c.InsufficientReason)
		}
		return
	}
	p.metrics.RecordHealth(profileID, res.Health.Grade)
	if res.Health.InsufficientData {
		p.metrics.RecordInsufficient(profileID, string(models.ReasonInsufficientData))
	}
}

func (p *Pipeline) recordFailure(err error) { p.metrics.RecordEntityFailure(stageOf(err)) }

// stageOf returns the failing stage of err.
func stageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageScore
}
