package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

type execCall struct {
	sql  string
	args []any
}

type fakePG struct {
	execs    []execCall
	execErr  error
	queryErr error
	payloads []string
}

func (f *fakePG) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.execErr
}

func (f *fakePG) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeRows{payloads: f.payloads, pos: -1}, nil
}

// fakeRows yields one payload column per row.
type fakeRows struct {
	payloads []string
	pos      int
	closed   bool
}

func (r *fakeRows) Close() { r.closed = true }
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte { return nil }
func (r *fakeRows) Conn() *pgx.Conn { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.payloads)
}

func (r *fakeRows) Scan(dest ...any) error {
	p, ok := dest[0].(*string)
	if !ok {
		return errors.New("unexpected scan target")
	}
	*p = r.payloads[r.pos]
	return nil
}

func (r *fakeRows) Values() ([]any, error) { return []any{r.payloads[r.pos]}, nil }

func TestPGScoreSinkUpsert(t *testing.T) {
	pg := &fakePG{}
	sink := NewPGScoreSink(pg)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return fixed }

	sc := models.CompositeScore{
		EntityID:         "AAPL",
		Timestamp:        day(3),
		ProfileID:        "eq",
		ProfileVersion:   "2",
		AdjustedScore:    0.42,
		Classification:   models.Buy,
		RegimeLevel:      models.RegimeHigh,
		InsufficientData: false,
	}
	require.NoError(t, sink.Upsert(context.Background(), sc))
	require.Len(t, pg.execs, 1)
	call := pg.execs[0]
	assert.True(t, strings.Contains(call.sql, "ON CONFLICT (profile_id, entity_id, ts) DO UPDATE"))
	require.Len(t, call.args, 12)
	assert.Equal(t, "eq", call.args[0])
	assert.Equal(t, "AAPL", call.args[2])
	assert.Equal(t, "BUY", call.args[5])
	assert.Equal(t, true, call.args[7])
	assert.Equal(t, "HIGH", call.args[9])
	assert.Equal(t, fixed, call.args[11])

	var back models.CompositeScore
	require.NoError(t, json.Unmarshal(call.args[10].([]byte), &back))
	assert.Equal(t, sc.AdjustedScore, back.AdjustedScore)
}

func TestPGScoreSinkUpsertHealth(t *testing.T) {
	pg := &fakePG{}
	sink := NewPGScoreSink(pg)
	overall := 61.5
	hs := models.HealthScore{
		EntityID:  "US",
		Timestamp: day(1),
		ProfileID: "macro",
		Overall:   &overall,
		Grade:     models.GradeModerate,
		Interval:  &models.ConfidenceInterval{Lower: 55, Upper: 68, Level: 0.95},
	}
	require.NoError(t, sink.UpsertHealth(context.Background(), hs))
	args := pg.execs[0].args
	require.Len(t, args, 10)
	assert.Equal(t, &overall, args[4])
	assert.Equal(t, "MODERATE", args[5])
	assert.Equal(t, 55.0, *args[6].(*float64))
	assert.Equal(t, 68.0, *args[7].(*float64))

	hs.Interval = nil
	require.NoError(t, sink.UpsertHealth(context.Background(), hs))
	assert.Nil(t, pg.execs[1].args[6].(*float64))
}

func TestPGScoreSinkWrapsErrors(t *testing.T) {
	boom := errors.New("conn reset")
	sink := NewPGScoreSink(&fakePG{execErr: boom, queryErr: boom})

	err := sink.Upsert(context.Background(), models.CompositeScore{EntityID: "AAPL", Timestamp: day(0)})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "AAPL")

	_, err = sink.History(context.Background(), "AAPL", day(0), day(5))
	assert.ErrorIs(t, err, boom)
}

func TestPGScoreSinkHistory(t *testing.T) {
	a, _ := json.Marshal(models.CompositeScore{EntityID: "AAPL", Timestamp: day(1), ProfileID: "eq", AdjustedScore: 0.1})
	b, _ := json.Marshal(models.CompositeScore{EntityID: "AAPL", Timestamp: day(2), ProfileID: "eq", AdjustedScore: 0.2})
	sink := NewPGScoreSink(&fakePG{payloads: []string{string(a), string(b)}})

	hist, err := sink.History(context.Background(), "AAPL", day(0), day(5))
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, day(2), hist[1].Timestamp.UTC())
	assert.Equal(t, 0.2, hist[1].AdjustedScore)

	bad := NewPGScoreSink(&fakePG{payloads: []string{"{"}})
	_, err = bad.History(context.Background(), "AAPL", day(0), day(5))
	assert.Error(t, err)
}
