package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/repository"
	"FinSignal/internal/services/regime"
	"FinSignal/internal/services/scoring"
	"FinSignal/pkg/cache"
)

const fixtureProfiles = `
profiles:
  - id: eq
    version: "3"
    window: 5
    indicators:
      - {name: rsi, weight: 0.5}
      - {name: macd, weight: 0.5}
  - id: macro
    kind: health
    window: 5
    indicators:
      - {name: gdp, series: GDP, weight: 0.6, group: Growth}
      - {name: unrate, series: UNRATE, weight: 0.4, group: Labor, inverted: true}
`

func day(n int) time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n) }

// seed writes 50,50,50,50,70 on days 0..4 for each series; the last point
// has z ≈ 1.79 against its window.
func seed(store *repository.MemoryStore, series ...string) {
	vals := []float64{50, 50, 50, 50, 70}
	for _, s := range series {
		for i, v := range vals {
			store.Append(models.Observation{SeriesID: s, Timestamp: day(i), Value: v})
		}
	}
}

type fixture struct {
	store       *repository.MemoryStore
	profiles    *repository.YAMLProfileStore
	checkpoints *repository.CacheCheckpointStore
	resolver    *RegimeResolver
	pipeline    *Pipeline
	batch       *BatchRecompute
}

type fixtureOptions struct {
	workers  int
	provider func(*repository.MemoryStore) domrepo.TimeSeriesProvider
	sink     func(*repository.MemoryStore) domrepo.CompositeScoreSink
}

func newFixture(t *testing.T, o fixtureOptions) *fixture {
	t.Helper()
	store := repository.NewMemoryStore("VIXCLS")
	seed(store, "AAPL:rsi", "AAPL:macd", "GDP", "UNRATE")

	profiles, err := repository.ParseProfiles([]byte(fixtureProfiles))
	require.NoError(t, err)

	var provider domrepo.TimeSeriesProvider = store
	if o.provider != nil {
		provider = o.provider(store)
	}
	var sink domrepo.CompositeScoreSink = store
	if o.sink != nil {
		sink = o.sink(store)
	}
	if o.workers == 0 {
		o.workers = 2
	}

	checkpoints := repository.NewCacheCheckpointStore(cache.NewMemoryCache(), 0)
	resolver := NewRegimeResolver(store, regime.New(regime.DefaultConfig()), "VIXCLS", 60, nil, nil)
	pipeline := NewPipeline(NewEntityScorer(provider, 0), sink, nil, nil, nil)
	batch := NewBatchRecompute(profiles, pipeline, resolver, checkpoints, BatchConfig{Workers: o.workers, CheckpointEvery: 1}, nil, nil)
	return &fixture{
		store:       store,
		profiles:    profiles,
		checkpoints: checkpoints,
		resolver:    resolver,
		pipeline:    pipeline,
		batch:       batch,
	}
}

func (f *fixture) profile(t *testing.T, id string) *scoring.Profile {
	t.Helper()
	p, err := f.profiles.Profile(id)
	require.NoError(t, err)
	return p
}

type providerFunc func(ctx context.Context, series string, from, to time.Time) ([]models.Observation, error)

func (f providerFunc) GetObservations(ctx context.Context, series string, from, to time.Time) ([]models.Observation, error) {
	return f(ctx, series, from, to)
}

// failingSeries makes every fetch of series fail.
func failingSeries(series string) func(*repository.MemoryStore) domrepo.TimeSeriesProvider {
	return func(store *repository.MemoryStore) domrepo.TimeSeriesProvider {
		return providerFunc(func(ctx context.Context, s string, from, to time.Time) ([]models.Observation, error) {
			if s == series {
				return nil, &models.ProviderUnavailableError{Provider: "test", SeriesID: s, Err: errors.New("timeout")}
			}
			return store.GetObservations(ctx, s, from, to)
		})
	}
}

// hookSink runs onUpsert after every stored composite score.
type hookSink struct {
	*repository.MemoryStore
	upserts  atomic.Int32
	onUpsert func(n int32)
}

func (s *hookSink) Upsert(ctx context.Context, sc models.CompositeScore) error {
	if err := s.MemoryStore.Upsert(ctx, sc); err != nil {
		return err
	}
	if s.onUpsert != nil {
		s.onUpsert(s.upserts.Add(1))
	}
	return nil
}
