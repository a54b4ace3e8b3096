package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/util"
)

// MemoryStore keeps observations and scores in process. It serves as the
// time series provider, regime provider, score sink and history reader of
// the memory backend.
type MemoryStore struct {
	mu           sync.RWMutex
	series       map[string][]models.Observation
	scores       map[string]models.CompositeScore
	health       map[string]models.HealthScore
	regimeSeries string
	writes       int
}

var (
	_ domrepo.TimeSeriesProvider   = (*MemoryStore)(nil)
	_ domrepo.RegimeSignalProvider = (*MemoryStore)(nil)
	_ domrepo.CompositeScoreSink   = (*MemoryStore)(nil)
	_ domrepo.ScoreHistoryReader   = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store. regimeSeries names the series
// returned by GetVolatilitySeries.
func NewMemoryStore(regimeSeries string) *MemoryStore {
	return &MemoryStore{
		series:       make(map[string][]models.Observation),
		scores:       make(map[string]models.CompositeScore),
		health:       make(map[string]models.HealthScore),
		regimeSeries: regimeSeries,
	}
}

// Append adds observations; series are kept normalized.
func (m *MemoryStore) Append(obs ...models.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	touched := make(map[string]struct{})
	for _, o := range obs {
		m.series[o.SeriesID] = append(m.series[o.SeriesID], o)
		touched[o.SeriesID] = struct{}{}
	}
	for id := range touched {
		m.series[id] = models.NormalizeObservations(m.series[id])
	}
}

// LoadCSV reads series_id,timestamp,value rows. A header row is skipped.
func (m *MemoryStore) LoadCSV(r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var obs []models.Observation
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && strings.EqualFold(rec[0], "series_id") {
			continue
		}
		ts, ok := util.ParseTime(rec[1])
		if !ok {
			return 0, fmt.Errorf("line %d: invalid timestamp %q", line, rec[1])
		}
		v, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return 0, fmt.Errorf("line %d: invalid value %q: %w", line, rec[2], err)
		}
		obs = append(obs, models.Observation{SeriesID: rec[0], Timestamp: ts, Value: v})
	}
	m.Append(obs...)
	return len(obs), nil
}

func (m *MemoryStore) GetObservations(ctx context.Context, seriesID string, from, to time.Time) ([]models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Observation
	for _, o := range m.series[seriesID] {
		if o.Timestamp.Before(from) || o.Timestamp.After(to) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *MemoryStore) GetVolatilitySeries(ctx context.Context, asOf time.Time, lookback int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obs, ok := m.series[m.regimeSeries]
	if !ok {
		return nil, &models.ProviderUnavailableError{
			Provider: "memory",
			SeriesID: m.regimeSeries,
			Err:      fmt.Errorf("series not loaded"),
		}
	}
	obs = models.UpTo(obs, asOf)
	if lookback > 0 && len(obs) > lookback {
		obs = obs[len(obs)-lookback:]
	}
	return models.Values(obs), nil
}

func (m *MemoryStore) Upsert(ctx context.Context, s models.CompositeScore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[rowKey(s.ProfileID, s.Key())] = s
	m.writes++
	return nil
}

func (m *MemoryStore) UpsertHealth(ctx context.Context, s models.HealthScore) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[rowKey(s.ProfileID, s.Key())] = s
	m.writes++
	return nil
}

func (m *MemoryStore) History(ctx context.Context, entityID string, from, to time.Time) ([]models.CompositeScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CompositeScore
	for _, s := range m.scores {
		if s.EntityID != entityID || s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ProfileID < out[j].ProfileID
	})
	return out, nil
}

// Scores returns every stored composite score ordered by key.
func (m *MemoryStore) Scores() []models.CompositeScore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.CompositeScore, 0, len(m.scores))
	for _, s := range m.scores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// HealthScores returns every stored health score ordered by key.
func (m *MemoryStore) HealthScores() []models.HealthScore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.HealthScore, 0, len(m.health))
	for _, s := range m.health {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// Writes counts upsert calls, including overwrites.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func rowKey(profileID string, k models.ScoreKey) string {
	return profileID + "|" + k.EntityID + "|" + k.Timestamp.UTC().Format(time.RFC3339Nano)
}
